package stream

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and single-node
// development deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Status
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Status),
		now:     time.Now,
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, channelID string, update Update) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	key := NormalizeChannelID(channelID)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		record = Status{ChannelID: key}
	}
	if update.Live != nil {
		record.Live = *update.Live
	}
	if update.PlaybackURL != nil {
		record.PlaybackURL = *update.PlaybackURL
	}
	if update.ContentType != nil {
		record.ContentType = *update.ContentType
	}
	if update.ThumbnailURL != nil {
		record.ThumbnailURL = *update.ThumbnailURL
	}
	if update.ArchiveEnabled != nil {
		record.ArchiveEnabled = *update.ArchiveEnabled
	}
	record.UpdatedAt = s.now().UTC()
	s.records[key] = record
	return record, nil
}

func (s *MemoryStore) Get(ctx context.Context, channelID string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	key := NormalizeChannelID(channelID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok {
		return Status{}, ErrNotFound
	}
	return record, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
