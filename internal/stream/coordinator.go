package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lbryio/odysee-media-server/internal/observability/metrics"
)

// SignatureVerifier validates that a claimed channel identity produced a
// signed payload. Implementations collapse every failure mode to false and
// log the distinguishing reason; they never return an error to the caller.
type SignatureVerifier interface {
	Verify(ctx context.Context, channelID, dataHex, signature, signingTS string) bool
}

// ArchiveReporter forwards archive metadata to the ingestion API. The
// returned string is the remote acknowledgement body, opaque to this
// package.
type ArchiveReporter interface {
	Report(ctx context.Context, channelID, location string, durationSeconds float64, thumbnails []string) (string, error)
}

// Notifier is told about live/offline transitions so process-wide dispatch
// logic can track the active streamer set. The coordinator only notifies it,
// never reads it. Implementations must be safe for concurrent use.
type Notifier interface {
	AddStreamer(channelID string)
	RemoveStreamer(channelID string)
}

// DefaultStoreTimeout bounds each status store call when the coordinator
// config does not set one.
const DefaultStoreTimeout = 5 * time.Second

// CoordinatorConfig wires the coordinator's collaborators. Store and CDNBase
// are required; the rest degrade to no-ops or defaults.
type CoordinatorConfig struct {
	Store        Store
	Verifier     SignatureVerifier
	Reporter     ArchiveReporter
	Registry     Notifier
	CDNBase      string
	StoreTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Recorder
}

// Coordinator owns the per-channel lifecycle state machine: it is the only
// writer of status records and mediates the signature verification and
// archive ingestion integrations.
//
// Operations on distinct channels run concurrently; racing writers to one
// channel resolve last-writer-wins through the store's keyed upsert. No lock
// is held across an I/O call.
type Coordinator struct {
	store        Store
	verifier     SignatureVerifier
	reporter     ArchiveReporter
	registry     Notifier
	cdnBase      string
	storeTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Recorder
}

// NewCoordinator validates the configuration and returns a ready
// Coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("status store is required")
	}
	if cfg.CDNBase == "" {
		return nil, errors.New("cdn base URL is required")
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	return &Coordinator{
		store:        cfg.Store,
		verifier:     cfg.Verifier,
		reporter:     cfg.Reporter,
		registry:     cfg.Registry,
		cdnBase:      cfg.CDNBase,
		storeTimeout: timeout,
		logger:       logger,
		metrics:      recorder,
	}, nil
}

// SetLiveStatus records a publish or unpublish transition. It is valid for
// unknown channels: the first call creates the record. The playback URL is
// unconditionally reset to the direct form, clearing any transcode sub-state,
// because a fresh publish always starts in direct mode until a transcoder
// claims it.
//
// The store write strictly precedes the registry notification; if the write
// fails the registry is never touched.
func (c *Coordinator) SetLiveStatus(ctx context.Context, channelID string, live bool) (Status, error) {
	id := NormalizeChannelID(channelID)
	if id == "" {
		return Status{}, errors.New("channel id is required")
	}

	playback := DirectPlaybackURL(c.cdnBase, id)
	contentType := PlaylistContentType
	thumbnail := ThumbnailURL(c.cdnBase, id)
	update := Update{
		Live:         &live,
		PlaybackURL:  &playback,
		ContentType:  &contentType,
		ThumbnailURL: &thumbnail,
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	status, err := c.store.Upsert(storeCtx, id, update)
	if err != nil {
		return Status{}, fmt.Errorf("update live status for %s: %w", id, err)
	}

	if c.registry != nil {
		if live {
			c.registry.AddStreamer(id)
		} else {
			c.registry.RemoveStreamer(id)
		}
	}

	event := "offline"
	if live {
		event = "live"
	}
	c.metrics.LifecycleEvent(event)
	c.logger.Info("live status updated", "channel_id", id, "live", live, "playback_url", status.PlaybackURL)
	return status, nil
}

// SetTranscodeStatus repoints the playback URL at a transcode output, or
// back to direct ingest playback. The channel must already have a record;
// a miss is a logged no-op rather than an error because transcode webhooks
// can race a concurrent offline transition. The live flag is not touched.
//
// The returned bool reports whether the update was applied.
func (c *Coordinator) SetTranscodeStatus(ctx context.Context, channelID string, transcoded bool, location string) (Status, bool, error) {
	id := NormalizeChannelID(channelID)
	if id == "" {
		return Status{}, false, errors.New("channel id is required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	if _, err := c.store.Get(storeCtx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.metrics.UnknownChannel("set_transcode_status")
			c.logger.Warn("transcode status for unknown streamer", "channel_id", id, "transcoded", transcoded)
			return Status{}, false, nil
		}
		return Status{}, false, fmt.Errorf("look up %s: %w", id, err)
	}

	playback := DirectPlaybackURL(c.cdnBase, id)
	if transcoded {
		playback = TranscodedPlaybackURL(c.cdnBase, location, id)
	}
	status, err := c.store.Upsert(storeCtx, id, Update{PlaybackURL: &playback})
	if err != nil {
		return Status{}, false, fmt.Errorf("update transcode status for %s: %w", id, err)
	}

	event := "transcode_stop"
	if transcoded {
		event = "transcode_start"
	}
	c.metrics.LifecycleEvent(event)
	c.logger.Info("transcode status updated", "channel_id", id, "transcoded", transcoded, "playback_url", status.PlaybackURL)
	return status, true, nil
}

// CheckArchive reports whether recordings for the channel should be
// archived. An unknown channel is logged distinctly and reported as not
// archiving.
func (c *Coordinator) CheckArchive(ctx context.Context, channelID string) (bool, error) {
	id := NormalizeChannelID(channelID)
	if id == "" {
		return false, errors.New("channel id is required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	status, err := c.store.Get(storeCtx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.metrics.UnknownChannel("check_archive")
			c.logger.Warn("archive check for unknown streamer", "channel_id", id)
			return false, nil
		}
		return false, fmt.Errorf("look up %s: %w", id, err)
	}
	return status.ArchiveEnabled, nil
}

// SaveArchive forwards archive metadata to the ingestion API. Archive
// ingestion is best-effort relative to the live-status path: reporter
// failures are logged and swallowed, so the call always succeeds from the
// caller's point of view. The status record is neither consulted nor
// mutated.
func (c *Coordinator) SaveArchive(ctx context.Context, channelID, location string, durationSeconds float64, thumbnails []string) {
	id := NormalizeChannelID(channelID)
	if c.reporter == nil {
		c.logger.Warn("archive reporter not configured", "channel_id", id)
		return
	}
	ack, err := c.reporter.Report(ctx, id, location, durationSeconds, thumbnails)
	if err != nil {
		c.metrics.ArchiveReport(false)
		c.logger.Error("archive report failed", "channel_id", id, "location", location, "error", err)
		return
	}
	c.metrics.ArchiveReport(true)
	c.logger.Info("archive reported", "channel_id", id, "location", location, "ack", ack)
}

// VerifySignature delegates to the signature verifier and records the
// outcome for audit. It must be consulted before any caller honors a
// claimed-identity transcode-location change; a missing verifier fails
// closed.
func (c *Coordinator) VerifySignature(ctx context.Context, channelID, dataHex, signature, signingTS string) bool {
	id := NormalizeChannelID(channelID)
	if c.verifier == nil {
		c.metrics.VerificationResult("unconfigured")
		c.logger.Error("signature verifier not configured", "channel_id", id)
		return false
	}
	c.logger.Info("verifying signature", "channel_id", id, "signing_ts", signingTS)
	valid := c.verifier.Verify(ctx, id, dataHex, signature, signingTS)
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	c.metrics.VerificationResult(outcome)
	c.logger.Info("signature verification finished", "channel_id", id, "valid", valid)
	return valid
}

// Ping reports status store reachability for health checks.
func (c *Coordinator) Ping(ctx context.Context) error {
	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.Ping(storeCtx)
}

// Get returns the status record for a channel, or ErrNotFound.
func (c *Coordinator) Get(ctx context.Context, channelID string) (Status, error) {
	storeCtx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.Get(storeCtx, channelID)
}
