package stream

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// PlaylistContentType is the MIME type reported for every HLS playlist URL
// stored on a status record.
const PlaylistContentType = "application/x-mpegurl"

// Status is the authoritative per-channel record tracked by the coordinator.
// A record that is absent from the store means the channel has never
// published, which callers must treat differently from an offline channel.
type Status struct {
	ChannelID      string    `json:"channelId"`
	Live           bool      `json:"live"`
	PlaybackURL    string    `json:"playbackUrl"`
	ContentType    string    `json:"contentType"`
	ThumbnailURL   string    `json:"thumbnailUrl"`
	ArchiveEnabled bool      `json:"archiveEnabled"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

var channelFolder = cases.Fold()

// NormalizeChannelID folds a channel identifier to its canonical lowercase
// form. All store keys and lookups go through this.
func NormalizeChannelID(id string) string {
	return channelFolder.String(strings.TrimSpace(id))
}

// DirectPlaybackURL returns the playlist URL for un-transcoded ingest
// playback: https://<cdn>/hls/<channelId>/index.m3u8
func DirectPlaybackURL(cdnBase, channelID string) string {
	return fmt.Sprintf("%s/hls/%s/index.m3u8", strings.TrimRight(cdnBase, "/"), NormalizeChannelID(channelID))
}

// TranscodedPlaybackURL returns the playlist URL for a named transcode
// output: https://<cdn>/<location>/<channelId>.m3u8
//
// The location is embedded verbatim; validating it is the webhook sender's
// responsibility.
func TranscodedPlaybackURL(cdnBase, location, channelID string) string {
	return fmt.Sprintf("%s/%s/%s.m3u8", strings.TrimRight(cdnBase, "/"), location, NormalizeChannelID(channelID))
}

// ThumbnailURL returns the preview image URL for a channel:
// https://<cdn>/preview/<channelId>.jpg
func ThumbnailURL(cdnBase, channelID string) string {
	return fmt.Sprintf("%s/preview/%s.jpg", strings.TrimRight(cdnBase, "/"), NormalizeChannelID(channelID))
}
