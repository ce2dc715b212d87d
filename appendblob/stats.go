package appendblob

import (
	"sync"
	"time"
)

// Stats tracks append activity of a writer.
type Stats struct {
	sum       time.Duration
	blocks    int64
	bytes     int64
	rotations int64
	creations int64
	mu        sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful block append.
func (s *Stats) Update(d time.Duration, size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sum += d
	s.blocks++
	s.bytes += int64(size)
}

func (s *Stats) rotated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotations++
}

func (s *Stats) created() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creations++
}

// Average returns the average append duration of successful blocks.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocks == 0 {
		return 0
	}
	return s.sum / time.Duration(s.blocks)
}

// Blocks returns the number of appended blocks.
func (s *Stats) Blocks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks
}

// Bytes returns the number of appended bytes.
func (s *Stats) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Rotations returns how many times the writer moved to the next rotation index.
func (s *Stats) Rotations() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotations
}

// Creations returns the number of objects the writer created.
func (s *Stats) Creations() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creations
}
