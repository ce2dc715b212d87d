package shipper

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/cockroachdb/pebble"
)

const (
	offsetPrefix = "offset/"
	statePrefix  = "state/"
)

// Ledger persists shipped file offsets and the naming state of every worker,
// so a restarted shipper neither re-sends shipped bytes nor forgets its rotation index.
type Ledger struct {
	db *pebble.DB
}

// OpenLedger creates or opens the ledger database in dir.
func OpenLedger(dir string) (*Ledger, error) {
	if dir == "" {
		return nil, errors.New("ledger: directory is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", dir, err)
	}
	return &Ledger{db: db}, nil
}

// Close ...
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Offset returns the number of bytes of path already shipped.
func (l *Ledger) Offset(path string) (int64, error) {
	value, closer, err := l.db.Get([]byte(offsetPrefix + path))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close() //nolint:errcheck

	if len(value) != 8 {
		return 0, fmt.Errorf("ledger: corrupt offset of %s", path)
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

// State returns the saved naming state of a worker, the zero state when none was saved.
func (l *Ledger) State(worker int) (appendblob.NameState, error) {
	var state appendblob.NameState

	value, closer, err := l.db.Get(stateKey(worker))
	if errors.Is(err, pebble.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return state, err
	}
	defer closer.Close() //nolint:errcheck

	if err := json.Unmarshal(value, &state); err != nil {
		return state, fmt.Errorf("ledger: corrupt state of worker %d: %w", worker, err)
	}
	return state, nil
}

// Commit atomically records a shipped offset together with the worker's naming state.
func (l *Ledger) Commit(path string, offset int64, worker int, state appendblob.NameState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(offset))

	batch := l.db.NewBatch()
	defer batch.Close() //nolint:errcheck

	if err := batch.Set([]byte(offsetPrefix+path), buf[:], nil); err != nil {
		return err
	}
	if err := batch.Set(stateKey(worker), encoded, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// SaveState records the worker's naming state alone, e.g. after a failed chunk.
func (l *Ledger) SaveState(worker int, state appendblob.NameState) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return l.db.Set(stateKey(worker), encoded, pebble.Sync)
}

func stateKey(worker int) []byte {
	return []byte(statePrefix + strconv.Itoa(worker))
}
