package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nostr-feed/internal/types"
)

const (
	profileKeyPrefix = "profile:"
	followsKeyPrefix = "follows:"
)

type writeOp struct {
	key   string
	value []byte
	ttl   time.Duration
}

// Snapshots writes profile and follow-set snapshots through a Backend.
// Saves are queued and flushed by a single writer goroutine so callers on
// the engine loop never block on I/O. A full queue drops the write.
type Snapshots struct {
	backend Backend
	cfg     Config
	queue   chan writeOp
	done    chan struct{}
	closing sync.Once
	dropped atomic.Int64
	written atomic.Int64
	logger  *slog.Logger
}

// NewSnapshots starts the writer goroutine. Call Close to flush and stop it.
func NewSnapshots(backend Backend, cfg Config) *Snapshots {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	s := &Snapshots{
		backend: backend,
		cfg:     cfg,
		queue:   make(chan writeOp, cfg.QueueSize),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "store"),
	}
	go s.writeLoop()
	return s
}

func (s *Snapshots) writeLoop() {
	defer close(s.done)
	for op := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		err := s.backend.Set(ctx, op.key, op.value, op.ttl)
		cancel()
		if err != nil {
			s.logger.Warn("snapshot write failed", "key", op.key, "error", err)
			continue
		}
		s.written.Add(1)
	}
}

func (s *Snapshots) enqueue(op writeOp) {
	select {
	case s.queue <- op:
	default:
		s.dropped.Add(1)
		s.logger.Debug("snapshot queue full, dropping write", "key", op.key)
	}
}

// SaveProfile queues a profile snapshot
func (s *Snapshots) SaveProfile(p types.Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	s.enqueue(writeOp{key: profileKeyPrefix + p.PubKey, value: data, ttl: s.cfg.ProfileTTL})
}

// SaveFollows queues the follow set of owner
func (s *Snapshots) SaveFollows(owner string, fs types.FollowSet) {
	data, err := json.Marshal(fs)
	if err != nil {
		return
	}
	s.enqueue(writeOp{key: followsKeyPrefix + owner, value: data, ttl: s.cfg.FollowsTTL})
}

// LoadFollows reads the stored follow set of owner. found is false when none is stored.
func (s *Snapshots) LoadFollows(ctx context.Context, owner string) (fs types.FollowSet, found bool, err error) {
	data, found, err := s.backend.Get(ctx, followsKeyPrefix+owner)
	if err != nil || !found {
		return types.FollowSet{}, false, err
	}
	if err := json.Unmarshal(data, &fs); err != nil {
		return types.FollowSet{}, false, fmt.Errorf("decode follows snapshot: %w", err)
	}
	return fs, true, nil
}

// LoadProfiles reads stored profiles for the given keys. Missing or
// undecodable entries are skipped.
func (s *Snapshots) LoadProfiles(ctx context.Context, pubkeys []string) ([]types.Profile, error) {
	if len(pubkeys) == 0 {
		return nil, nil
	}
	keys := make([]string, len(pubkeys))
	for i, pk := range pubkeys {
		keys[i] = profileKeyPrefix + pk
	}
	found, err := s.backend.GetMultiple(ctx, keys)
	if err != nil {
		return nil, err
	}
	profiles := make([]types.Profile, 0, len(found))
	for _, key := range keys {
		data, ok := found[key]
		if !ok {
			continue
		}
		var p types.Profile
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Debug("skipping bad profile snapshot", "key", key, "error", err)
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Stats returns how many snapshots were written and dropped
func (s *Snapshots) Stats() (written, dropped int64) {
	return s.written.Load(), s.dropped.Load()
}

// Close drains queued writes and closes the backend.
func (s *Snapshots) Close() error {
	s.closing.Do(func() { close(s.queue) })
	<-s.done
	return s.backend.Close()
}
