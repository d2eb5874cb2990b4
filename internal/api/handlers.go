// Package api exposes the webhook and administrative HTTP surface of the
// stream lifecycle coordinator.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lbryio/odysee-media-server/internal/stream"
)

// Handler serves the inbound lifecycle operations. The edge server's
// webhook dispatcher and administrative tooling are the only expected
// callers; transport-level authentication lives in the server middleware.
type Handler struct {
	Coordinator *stream.Coordinator
	Logger      *slog.Logger
}

// NewHandler constructs a Handler around a coordinator.
func NewHandler(coordinator *stream.Coordinator, logger *slog.Logger) *Handler {
	return &Handler{Coordinator: coordinator, Logger: logger}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type liveStatusRequest struct {
	ChannelID string `json:"channelId"`
	Live      *bool  `json:"live"`
}

type liveStatusResponse struct {
	Status      string `json:"status"`
	ChannelID   string `json:"channelId"`
	Live        bool   `json:"live"`
	PlaybackURL string `json:"playbackUrl"`
}

// LiveStatus handles the publish/unpublish webhook. It is the sole entry
// and exit point for the live state.
func (h *Handler) LiveStatus(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req liveStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("channelId is required"))
		return
	}
	if req.Live == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("live is required"))
		return
	}

	status, err := h.Coordinator.SetLiveStatus(r.Context(), req.ChannelID, *req.Live)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, liveStatusResponse{
		Status:      "ok",
		ChannelID:   status.ChannelID,
		Live:        status.Live,
		PlaybackURL: status.PlaybackURL,
	})
}

type transcodeStatusRequest struct {
	ChannelID  string `json:"channelId"`
	Transcoded *bool  `json:"transcoded"`
	Location   string `json:"location"`
}

type transcodeStatusResponse struct {
	Status      string `json:"status"`
	ChannelID   string `json:"channelId"`
	PlaybackURL string `json:"playbackUrl,omitempty"`
}

// TranscodeStatus handles the transcoder's claim/release webhook. An
// unknown channel is acknowledged with status "ignored" rather than an
// error: the webhook can race a concurrent offline transition.
func (h *Handler) TranscodeStatus(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req transcodeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("channelId is required"))
		return
	}
	if req.Transcoded == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("transcoded is required"))
		return
	}
	if *req.Transcoded && strings.TrimSpace(req.Location) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("location is required when transcoded is true"))
		return
	}

	status, applied, err := h.Coordinator.SetTranscodeStatus(r.Context(), req.ChannelID, *req.Transcoded, req.Location)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !applied {
		writeJSON(w, http.StatusOK, transcodeStatusResponse{Status: "ignored", ChannelID: stream.NormalizeChannelID(req.ChannelID)})
		return
	}
	writeJSON(w, http.StatusOK, transcodeStatusResponse{
		Status:      "ok",
		ChannelID:   status.ChannelID,
		PlaybackURL: status.PlaybackURL,
	})
}

type verifySignatureRequest struct {
	ChannelID string `json:"channelId"`
	Signature string `json:"signature"`
	SigningTS string `json:"signingTs"`
	DataHex   string `json:"dataHex"`
}

// VerifySignature gates privileged transcode-location changes: dispatchers
// must obtain valid=true for the same channel and signature before honoring
// one.
func (h *Handler) VerifySignature(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req verifySignatureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("channelId is required"))
		return
	}

	valid := h.Coordinator.VerifySignature(r.Context(), req.ChannelID, req.DataHex, req.Signature, req.SigningTS)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

type saveArchiveRequest struct {
	Location   string   `json:"location"`
	Duration   float64  `json:"duration"`
	Thumbnails []string `json:"thumbnails"`
}

type archiveCheckResponse struct {
	ChannelID      string `json:"channelId"`
	ArchiveEnabled bool   `json:"archiveEnabled"`
}

// StreamByID routes /api/streams/{channelId} and
// /api/streams/{channelId}/archive.
func (h *Handler) StreamByID(w http.ResponseWriter, r *http.Request) {
	remainder := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/streams/"), "/")
	if remainder == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("channel id missing"))
		return
	}
	segments := strings.Split(remainder, "/")
	channelID := segments[0]

	switch {
	case len(segments) == 1:
		h.streamStatus(channelID, w, r)
	case len(segments) == 2 && segments[1] == "archive":
		h.archive(channelID, w, r)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown stream path"))
	}
}

func (h *Handler) streamStatus(channelID string, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	status, err := h.Coordinator.Get(r.Context(), channelID)
	if err != nil {
		if errors.Is(err, stream.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("channel %s not found", stream.NormalizeChannelID(channelID)))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) archive(channelID string, w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		enabled, err := h.Coordinator.CheckArchive(r.Context(), channelID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, archiveCheckResponse{
			ChannelID:      stream.NormalizeChannelID(channelID),
			ArchiveEnabled: enabled,
		})
	case http.MethodPost:
		var req saveArchiveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(req.Location) == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("location is required"))
			return
		}
		h.Coordinator.SaveArchive(r.Context(), channelID, req.Location, req.Duration, req.Thumbnails)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// Health reports process liveness and status store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Coordinator.Ping(r.Context()); err != nil {
		h.logger().Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return false
	}
	return true
}
