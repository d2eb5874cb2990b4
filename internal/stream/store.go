package stream

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when no status record exists for a
// channel.
var ErrNotFound = errors.New("stream status not found")

// Update carries the fields merged into a status record by an upsert. Nil
// pointers leave the existing stored value untouched, so creation and partial
// update share one code path.
type Update struct {
	Live           *bool
	PlaybackURL    *string
	ContentType    *string
	ThumbnailURL   *string
	ArchiveEnabled *bool
}

// Store persists one status record per normalized channel ID.
//
// Upsert must merge atomically per key and stamp UpdatedAt from the store's
// own clock; concurrent readers never observe a partially merged record.
// Implementations do not retry: transient errors propagate to the caller,
// which decides recovery. Racing writers resolve last-writer-wins.
type Store interface {
	Upsert(ctx context.Context, channelID string, update Update) (Status, error)
	Get(ctx context.Context, channelID string) (Status, error)
	Ping(ctx context.Context) error
}
