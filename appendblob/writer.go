// Package appendblob appends log chunks to append-only blob objects, rotating
// the object name when an object is sealed by its block count limit.
package appendblob

import (
	"context"
	"sync"
	"time"

	"github.com/bitrise-io/go-appendblob/appendblob/objectkey"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Chunk is one unit of buffered records handed over by the host.
type Chunk struct {
	Content  []byte
	Metadata objectkey.Metadata
}

// NameGenerator renders the object name of a chunk for a rotation index.
type NameGenerator interface {
	Generate(meta objectkey.Metadata, index int) string
}

// NameState is the naming state a writer carries from one chunk to the next.
type NameState struct {
	// Current is the object the last chunk was (or was being) appended to.
	Current string
	// Previous is the object the last successful chunk ended on.
	Previous string
	// Index is the rotation index of Current.
	Index int
}

// Option configures a Writer.
type Option func(*Writer)

// WithState seeds the writer with a previously saved naming state.
func WithState(state NameState) Option {
	return func(w *Writer) {
		w.state = state
	}
}

// WithBlockSize caps the block size below BlockSizeLimit.
func WithBlockSize(size int) Option {
	return func(w *Writer) {
		if size > 0 && size < BlockSizeLimit {
			w.blockSize = size
		}
	}
}

// Writer appends chunks to a lineage of append-only objects.
//
// Blocks of one chunk are appended strictly in order and the state is owned by
// the writer, so each worker needs its own Writer. Delivery is at-least-once:
// when a chunk fails after some of its blocks were appended, those blocks stay in
// the object and a retry of the chunk appends the whole content again.
type Writer struct {
	store     Store
	container string
	names     NameGenerator
	logger    log.Logger
	blockSize int
	stats     *Stats

	mu    sync.Mutex
	state NameState
}

// NewWriter ...
func NewWriter(store Store, container string, names NameGenerator, logger log.Logger, opts ...Option) *Writer {
	w := &Writer{
		store:     store,
		container: container,
		names:     names,
		logger:    logger,
		blockSize: BlockSizeLimit,
		stats:     NewStats(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write appends the chunk's content to the object its metadata names.
// Store errors other than a sealed or missing object are returned unchanged.
func (w *Writer) Write(ctx context.Context, chunk Chunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := resolveName(w.names, w.state, chunk.Metadata)
	state, err := w.appendContent(ctx, state, chunk)
	w.state = state

	return err
}

// State returns the current naming state.
func (w *Writer) State() NameState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats returns the append statistics.
func (w *Writer) Stats() *Stats {
	return w.stats
}

// resolveName keeps the carried rotation index only while the chunk renders to
// the object the previous chunk ended on. A different name means a new time
// bucket (or path), which starts over at index 0.
func resolveName(names NameGenerator, state NameState, meta objectkey.Metadata) NameState {
	candidate := names.Generate(meta, state.Index)
	if candidate != state.Previous {
		state.Index = 0
		candidate = names.Generate(meta, state.Index)
	}
	state.Current = candidate
	return state
}

// appendContent runs the append loop for one chunk and returns the resulting state.
func (w *Writer) appendContent(ctx context.Context, state NameState, chunk Chunk) (NameState, error) {
	content := chunk.Content

	w.logger.Debugf("append_blob.start: %s, content size: %s", state.Current, units.BytesSize(float64(len(content))))

	splitter := Split(len(content), w.blockSize)
	for r, ok := splitter.Next(); ok; r, ok = splitter.Next() {
		// createdFor is the object created for this block; a second missing
		// object report right after creating it is not recoverable here.
		createdFor := ""

		for {
			w.logger.Debugf("append_blob.chunk: content[%d..%d]", r.Start, r.End)

			start := time.Now()
			err := w.store.AppendBlock(ctx, w.container, state.Current, content[r.Start:r.End])
			if err == nil {
				w.stats.Update(time.Since(start), r.Len())
				break
			}

			switch KindOf(err) {
			case KindBlockLimitExceeded:
				next, rotateErr := w.rotate(ctx, state, chunk.Metadata, err)
				state = next
				if rotateErr != nil {
					return state, rotateErr
				}
				createdFor = state.Current
			case KindObjectMissing:
				if createdFor == state.Current {
					return state, err
				}
				w.logger.Debugf("append_blob: %s blob doesn't exist, creating new blob", state.Current)
				if err := w.create(ctx, state.Current); err != nil {
					return state, err
				}
				createdFor = state.Current
			default:
				return state, err
			}
		}
	}

	state.Previous = state.Current
	w.logger.Debugf("append_blob.complete: %s", state.Current)

	return state, nil
}

// rotate moves to the next rotation index and creates the object it names.
func (w *Writer) rotate(ctx context.Context, state NameState, meta objectkey.Metadata, limitErr error) (NameState, error) {
	old := state.Current

	state.Index++
	state.Current = w.names.Generate(meta, state.Index)

	if state.Current == old {
		w.logger.Warnf("append_blob: blocks limit reached, you need to use %%{index} for the format")
		return state, &RotationIneffectiveError{Name: old, Err: limitErr}
	}

	w.logger.Infof("append_blob: blocks limit reached on %s, creating new blob %s", old, state.Current)
	w.stats.rotated()

	if err := w.create(ctx, state.Current); err != nil {
		return state, err
	}
	return state, nil
}

func (w *Writer) create(ctx context.Context, name string) error {
	if err := w.store.CreateObject(ctx, w.container, name); err != nil {
		return err
	}
	w.stats.created()
	return nil
}
