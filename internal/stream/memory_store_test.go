package stream

import (
	"context"
	"errors"
	"testing"
	"time"
)

func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestMemoryStoreUpsertCreatesRecord(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	status, err := store.Upsert(context.Background(), "ABC123", Update{
		Live:        boolPtr(true),
		PlaybackURL: strPtr("https://cdn.example.com/hls/abc123/index.m3u8"),
	})
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if status.ChannelID != "abc123" {
		t.Fatalf("expected folded channel id, got %q", status.ChannelID)
	}
	if !status.Live {
		t.Fatalf("expected live record")
	}
	if !status.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected store-assigned timestamp %v, got %v", fixed, status.UpdatedAt)
	}
}

func TestMemoryStoreUpsertMergesOnlySetFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "abc123", Update{
		Live:           boolPtr(true),
		PlaybackURL:    strPtr("https://cdn.example.com/hls/abc123/index.m3u8"),
		ContentType:    strPtr(PlaylistContentType),
		ArchiveEnabled: boolPtr(true),
	}); err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}

	status, err := store.Upsert(ctx, "abc123", Update{
		PlaybackURL: strPtr("https://cdn.example.com/transcoded/eu-1/abc123.m3u8"),
	})
	if err != nil {
		t.Fatalf("partial upsert failed: %v", err)
	}
	if !status.Live {
		t.Fatalf("partial upsert must not clear the live flag")
	}
	if !status.ArchiveEnabled {
		t.Fatalf("partial upsert must not clear archiveEnabled")
	}
	if status.PlaybackURL != "https://cdn.example.com/transcoded/eu-1/abc123.m3u8" {
		t.Fatalf("playback URL not updated, got %q", status.PlaybackURL)
	}
	if status.ContentType != PlaylistContentType {
		t.Fatalf("content type must survive partial upsert, got %q", status.ContentType)
	}
}

func TestMemoryStoreGetMissingReturnsErrNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "never-published"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreGetFoldsLookupKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Upsert(ctx, "abc123", Update{Live: boolPtr(true)}); err != nil {
		t.Fatalf("seed upsert failed: %v", err)
	}
	status, err := store.Get(ctx, "ABC123")
	if err != nil {
		t.Fatalf("Get with uppercase key failed: %v", err)
	}
	if status.ChannelID != "abc123" {
		t.Fatalf("expected folded record key, got %q", status.ChannelID)
	}
}

func TestMemoryStoreHonorsCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Upsert(ctx, "abc123", Update{Live: boolPtr(true)}); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping error from cancelled context")
	}
}
