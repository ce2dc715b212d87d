package appendblob

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a Store failure.
type ErrorKind int

const (
	// KindOther covers every failure the writer cannot fix by renaming:
	// auth, network, quota, unexpected statuses.
	KindOther ErrorKind = iota
	// KindBlockLimitExceeded means the object reached its maximum block count and is sealed.
	KindBlockLimitExceeded
	// KindObjectMissing means the target object does not exist yet.
	KindObjectMissing
)

func (k ErrorKind) String() string {
	switch k {
	case KindBlockLimitExceeded:
		return "block limit exceeded"
	case KindObjectMissing:
		return "object missing"
	default:
		return "other"
	}
}

// StoreError is the error type Store implementations return.
type StoreError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s (status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("store: %s (status %d): %s", e.Kind, e.StatusCode, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, KindOther when err is not a StoreError.
func KindOf(err error) ErrorKind {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return KindOther
}

// RotationIneffectiveError is returned when bumping the rotation index does not
// change the rendered object name, which happens when the key format lacks %{index}.
// It wraps the block limit error that triggered the rotation.
type RotationIneffectiveError struct {
	Name string
	Err  error
}

func (e *RotationIneffectiveError) Error() string {
	return fmt.Sprintf("blocks limit reached on %s and rotation kept the same name, you need to use %%{index} in the object key format: %s", e.Name, e.Err)
}

func (e *RotationIneffectiveError) Unwrap() error {
	return e.Err
}
