// Package shipper tails local files and ships their new lines as chunks
// through one appendblob.Writer per worker.
package shipper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/bitrise-io/go-appendblob/appendblob/objectkey"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options ...
type Options struct {
	Patterns     []string
	Workers      int
	MaxChunkSize int64
	// Timekey is the width of the time bucket a chunk's time key is truncated to.
	Timekey    time.Duration
	Tag        string
	RetryLimit uint
	RetryWait  time.Duration
	Now        func() time.Time
}

// Summary counts what one pass shipped.
type Summary struct {
	Files  int64
	Chunks int64
	Bytes  int64
}

// ErrSharedObjectNames is returned when more than one worker is configured but
// the object names do not depend on the worker.
var ErrSharedObjectNames = errors.New("object names do not depend on the worker, use " + PlaceholderWorkerID + " with more than one worker")

// Totals sums the append statistics of every worker.
type Totals struct {
	Blocks    int64
	Bytes     int64
	Rotations int64
	Creations int64
	// Average is the average append latency over all blocks.
	Average time.Duration
}

// Shipper ships files matching the patterns to the container.
type Shipper struct {
	opts    Options
	ledger  *Ledger
	logger  log.Logger
	writers []*appendblob.Writer
}

// New creates a worker writer per partition, each resuming from the naming
// state saved in the ledger.
func New(store appendblob.Store, container string, names appendblob.NameGenerator, ledger *Ledger, logger log.Logger, opts Options) (*Shipper, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = appendblob.BlockSizeLimit
	}
	if opts.Timekey <= 0 {
		opts.Timekey = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Workers > 1 && !workerScoped(names) {
		return nil, ErrSharedObjectNames
	}

	s := &Shipper{opts: opts, ledger: ledger, logger: logger}
	for worker := 0; worker < opts.Workers; worker++ {
		state, err := ledger.State(worker)
		if err != nil {
			return nil, err
		}
		s.writers = append(s.writers, appendblob.NewWriter(store, container, names, logger, appendblob.WithState(state)))
	}
	return s, nil
}

// Writer returns the writer of a worker.
func (s *Shipper) Writer(worker int) *appendblob.Writer {
	return s.writers[worker]
}

// Totals returns the append statistics of all workers since New.
func (s *Shipper) Totals() Totals {
	var totals Totals
	var latency time.Duration
	for _, w := range s.writers {
		stats := w.Stats()
		blocks := stats.Blocks()
		totals.Blocks += blocks
		totals.Bytes += stats.Bytes()
		totals.Rotations += stats.Rotations()
		totals.Creations += stats.Creations()
		latency += stats.Average() * time.Duration(blocks)
	}
	if totals.Blocks > 0 {
		totals.Average = latency / time.Duration(totals.Blocks)
	}
	return totals
}

// LogTotals logs the append statistics of all workers.
func (s *Shipper) LogTotals() {
	totals := s.Totals()
	s.logger.Printf("Appended %d blocks (%s), %d rotations, %d objects created, average append took %s",
		totals.Blocks, units.BytesSize(float64(totals.Bytes)), totals.Rotations, totals.Creations, totals.Average)
}

// workerScoped reports whether two workers render different names for the same chunk.
func workerScoped(names appendblob.NameGenerator) bool {
	meta := func(worker int) objectkey.Metadata {
		return objectkey.Metadata{Variables: map[string]string{variableWorkerID: strconv.Itoa(worker)}}
	}
	return names.Generate(meta(0), 0) != names.Generate(meta(1), 0)
}

// Discover returns the regular files matching the patterns, sorted and deduplicated.
func (s *Shipper) Discover() ([]string, error) {
	seen := map[string]bool{}
	var files []string

	for _, pattern := range s.opts.Patterns {
		base, glob := doublestar.SplitPattern(filepath.ToSlash(pattern))
		matches, err := doublestar.Glob(os.DirFS(base), glob)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			s.logger.Debugf("No match for pattern: %s", pattern)
		}

		for _, match := range matches {
			path := filepath.Join(base, filepath.FromSlash(match))
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// Partition assigns every file to exactly one worker.
func Partition(files []string, workers int) [][]string {
	partitions := make([][]string, workers)
	for _, file := range files {
		h := fnv.New32a()
		_, _ = h.Write([]byte(file))
		i := int(h.Sum32() % uint32(workers))
		partitions[i] = append(partitions[i], file)
	}
	return partitions
}

// RunOnce ships everything currently available in the matching files.
func (s *Shipper) RunOnce(ctx context.Context) (Summary, error) {
	files, err := s.Discover()
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	partitions := Partition(files, len(s.writers))

	g, ctx := errgroup.WithContext(ctx)
	for worker, partition := range partitions {
		g.Go(func() error {
			for _, path := range partition {
				if err := s.shipFile(ctx, worker, path, &summary); err != nil {
					return fmt.Errorf("ship %s: %w", path, err)
				}
			}
			return nil
		})
	}
	err = g.Wait()

	return Summary{
		Files:  atomic.LoadInt64(&summary.Files),
		Chunks: atomic.LoadInt64(&summary.Chunks),
		Bytes:  atomic.LoadInt64(&summary.Bytes),
	}, err
}

// Follow runs a pass every interval until ctx is cancelled or a pass fails.
func (s *Shipper) Follow(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := s.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.LogTotals()
				return nil
			}
			return err
		}
		if summary.Chunks > 0 {
			s.logger.Infof("Shipped %d chunks (%s) from %d files", summary.Chunks, units.BytesSize(float64(summary.Bytes)), summary.Files)
		}

		select {
		case <-ctx.Done():
			s.LogTotals()
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Shipper) shipFile(ctx context.Context, worker int, path string, summary *Summary) error {
	offset, err := s.ledger.Offset(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < offset {
		s.logger.Warnf("%s was truncated, shipping it from the start", path)
		offset = 0
	}
	if info.Size() == offset {
		return nil
	}

	shipped := false
	buf := make([]byte, s.opts.MaxChunkSize)
	for {
		content, err := readChunk(f, offset, buf)
		if err != nil {
			return err
		}
		if len(content) == 0 {
			break
		}

		if err := s.shipChunk(ctx, worker, path, content); err != nil {
			return err
		}

		offset += int64(len(content))
		if err := s.ledger.Commit(path, offset, worker, s.writers[worker].State()); err != nil {
			return err
		}

		shipped = true
		atomic.AddInt64(&summary.Chunks, 1)
		atomic.AddInt64(&summary.Bytes, int64(len(content)))
	}

	if shipped {
		atomic.AddInt64(&summary.Files, 1)
	}
	return nil
}

// readChunk reads at most len(buf) bytes at offset and cuts them after the last
// newline. A line longer than the buffer is shipped in buffer sized pieces; an
// unterminated trailing line waits for the next pass.
func readChunk(r io.ReaderAt, offset int64, buf []byte) ([]byte, error) {
	n, err := r.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	content := buf[:n]

	if i := bytes.LastIndexByte(content, '\n'); i >= 0 {
		return content[:i+1], nil
	}
	if n == len(buf) {
		return content, nil
	}
	return nil, nil
}

func (s *Shipper) shipChunk(ctx context.Context, worker int, path string, content []byte) error {
	writer := s.writers[worker]
	timeKey := s.opts.Now().Truncate(s.opts.Timekey)
	chunk := appendblob.Chunk{
		Content: content,
		Metadata: objectkey.Metadata{
			TimeKey: &timeKey,
			Tag:     s.opts.Tag,
			ChunkID: uuid.NewString(),
			Variables: map[string]string{
				variableWorkerID: strconv.Itoa(worker),
			},
		},
	}

	err := retry.Times(s.opts.RetryLimit).Wait(s.opts.RetryWait).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			s.logger.Debugf("Retrying chunk %s of %s (attempt %d)", chunk.Metadata.ChunkID, path, attempt)
		}

		err := writer.Write(ctx, chunk)
		if err == nil {
			return nil, false
		}

		var rotationErr *appendblob.RotationIneffectiveError
		if errors.As(err, &rotationErr) || ctx.Err() != nil {
			return err, true
		}
		s.logger.Warnf("Failed to append chunk %s of %s: %s", chunk.Metadata.ChunkID, path, err)
		return err, false
	})
	if err != nil {
		if saveErr := s.ledger.SaveState(worker, writer.State()); saveErr != nil {
			s.logger.Warnf("Failed to save naming state of worker %d: %s", worker, saveErr)
		}
		return err
	}

	state := writer.State()
	s.logger.Donef("Shipped %s of %s to %s", units.BytesSize(float64(len(content))), path, state.Current)
	return nil
}
