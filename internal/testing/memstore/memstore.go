// Package memstore is an in-memory appendblob.Store with a configurable block
// count limit, used by tests across the module.
package memstore

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/bitrise-io/go-appendblob/appendblob"
)

// ErrContainerNotFound is wrapped by a KindOther StoreError when the container is unknown.
var ErrContainerNotFound = errors.New("container not found")

type object struct {
	data   []byte
	blocks int
}

// Call records one store operation.
type Call struct {
	Op        string
	Container string
	Name      string
	Size      int
}

// Store keeps objects per container in memory.
type Store struct {
	// BlockLimit seals an object once it holds this many blocks. Zero means unlimited.
	BlockLimit int

	// FailAppend, when set, is consulted before every append; a non-nil error is returned as is.
	FailAppend func(container, name string) error

	mu         sync.Mutex
	containers map[string]map[string]*object
	calls      []Call
}

// New returns a store holding the given (empty) containers.
func New(blockLimit int, containers ...string) *Store {
	s := &Store{
		BlockLimit: blockLimit,
		containers: map[string]map[string]*object{},
	}
	for _, c := range containers {
		s.containers[c] = map[string]*object{}
	}
	return s
}

func (s *Store) AppendBlock(_ context.Context, container, name string, block []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Op: "append", Container: container, Name: name, Size: len(block)})

	if s.FailAppend != nil {
		if err := s.FailAppend(container, name); err != nil {
			return err
		}
	}

	objects, ok := s.containers[container]
	if !ok {
		return &appendblob.StoreError{Kind: appendblob.KindOther, StatusCode: http.StatusNotFound, Err: ErrContainerNotFound}
	}
	obj, ok := objects[name]
	if !ok {
		return &appendblob.StoreError{Kind: appendblob.KindObjectMissing, StatusCode: http.StatusNotFound}
	}
	if s.BlockLimit > 0 && obj.blocks >= s.BlockLimit {
		return &appendblob.StoreError{Kind: appendblob.KindBlockLimitExceeded, StatusCode: http.StatusConflict}
	}

	obj.data = append(obj.data, block...)
	obj.blocks++
	return nil
}

func (s *Store) CreateObject(_ context.Context, container, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Op: "create", Container: container, Name: name})

	objects, ok := s.containers[container]
	if !ok {
		return &appendblob.StoreError{Kind: appendblob.KindOther, StatusCode: http.StatusNotFound, Err: ErrContainerNotFound}
	}
	if _, ok := objects[name]; !ok {
		objects[name] = &object{}
	}
	return nil
}

func (s *Store) ObjectExists(_ context.Context, container, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.containers[container]
	if !ok {
		return false, nil
	}
	_, ok = objects[name]
	return ok, nil
}

func (s *Store) ListContainers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.containers))
	for name := range s.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) CreateContainer(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.containers[name]; !ok {
		s.containers[name] = map[string]*object{}
	}
	return nil
}

// Put seeds an object with content stored as the given number of blocks.
func (s *Store) Put(container, name string, content []byte, blocks int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.containers[container]
	if !ok {
		objects = map[string]*object{}
		s.containers[container] = objects
	}
	objects[name] = &object{data: append([]byte(nil), content...), blocks: blocks}
}

// Content returns a copy of the object's bytes and whether it exists.
func (s *Store) Content(container, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.containers[container][name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Objects returns the sorted object names of the container.
func (s *Store) Objects(container string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.containers[container]))
	for name := range s.containers[container] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calls returns the recorded operations in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
