// Package fabric implements the message framing law (inline vs.
// shared-ref payload promotion) and the shared buffer store backing
// it: a keyed byte store with TTL, checksum integrity, and a
// background expiry sweeper.
package fabric

import (
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// InlineThreshold is the largest payload embedded directly in a
	// Message; anything larger is promoted to a shared buffer.
	InlineThreshold = 1024
	// TTL is the absolute lifetime of a shared buffer from creation,
	// not from last access.
	TTL = 300 * time.Second
	// SweepInterval is the period of the background expiry sweep.
	SweepInterval = 60 * time.Second
)

var (
	ErrNotFound   = errors.New("fabric: block not found")
	ErrExpired    = errors.New("fabric: block expired")
	ErrCorruption = errors.New("fabric: checksum mismatch")
)

// Ref is the opaque handle returned by Allocate: sufficient for lookup
// and integrity check, but does not own the bytes.
type Ref struct {
	BlockID   uuid.UUID
	Size      int
	Checksum  uint64
	ExpiresAt int64
}

// block is the store-private record behind a Ref.
type block struct {
	bytes       []byte
	createdAt   int64
	accessedAt  int64
	accessCount int64
	owner       string
}

// Stats summarizes the store's current occupancy.
type Stats struct {
	Count           int
	TotalSize       int64
	MeanAccessCount float64
}

// Store is a concurrency-safe keyed byte store with TTL-based
// expiration.
type Store struct {
	mu     sync.RWMutex
	blocks map[uuid.UUID]*block
	log    zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewStore creates an empty Store and starts its background sweeper.
func NewStore(log zerolog.Logger) *Store {
	s := &Store{
		blocks: make(map[uuid.UUID]*block),
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.sweep()
	return s
}

// checksum computes the store's 64-bit integrity check over bytes.
func checksum(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// Allocate stores bytes under a fresh block id and returns a Ref.
func (s *Store) Allocate(bytes []byte, owner string) Ref {
	now := time.Now().Unix()
	id := uuid.New()
	sum := checksum(bytes)

	s.mu.Lock()
	s.blocks[id] = &block{
		bytes:      append([]byte(nil), bytes...),
		createdAt:  now,
		accessedAt: now,
		owner:      owner,
	}
	s.mu.Unlock()

	return Ref{
		BlockID:   id,
		Size:      len(bytes),
		Checksum:  sum,
		ExpiresAt: now + int64(TTL.Seconds()),
	}
}

// Read validates ref against the wall clock and the stored checksum,
// then returns a copy of the bytes and bumps access stats.
func (s *Store) Read(ref Ref) ([]byte, error) {
	if time.Now().Unix() > ref.ExpiresAt {
		return nil, ErrExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[ref.BlockID]
	if !ok {
		return nil, ErrNotFound
	}

	if checksum(b.bytes) != ref.Checksum {
		return nil, ErrCorruption
	}

	b.accessedAt = time.Now().Unix()
	b.accessCount++

	out := make([]byte, len(b.bytes))
	copy(out, b.bytes)
	return out, nil
}

// Deallocate removes id's entry.
func (s *Store) Deallocate(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[id]; !ok {
		return ErrNotFound
	}
	delete(s.blocks, id)
	return nil
}

// Stats reports the store's current occupancy.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Count: len(s.blocks)}
	var totalAccess int64
	for _, b := range s.blocks {
		stats.TotalSize += int64(len(b.bytes))
		totalAccess += b.accessCount
	}
	if stats.Count > 0 {
		stats.MeanAccessCount = float64(totalAccess) / float64(stats.Count)
	}
	return stats
}

// sweep removes every entry whose TTL has elapsed, once per
// SweepInterval, until Stop is called.
func (s *Store) sweep() {
	defer close(s.doneCh)

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

// sweepOnce collects expired keys under a read view, then removes them
// under the write lock, so the sweep never blocks foreground
// allocations for longer than a single map mutation.
func (s *Store) sweepOnce() {
	now := time.Now().Unix()

	s.mu.RLock()
	expired := make([]uuid.UUID, 0)
	for id, b := range s.blocks {
		if b.createdAt+int64(TTL.Seconds()) < now {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	for _, id := range expired {
		delete(s.blocks, id)
	}
	s.mu.Unlock()

	s.log.Debug().Int("removed", len(expired)).Msg("swept expired shared buffers")
}

// Stop halts the background sweeper.
func (s *Store) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
