package exitcode

import (
	"errors"

	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/bitrise-io/go-appendblob/config"
	"github.com/bitrise-io/go-appendblob/credential"
)

// Exit codes of the appendblob-ship CLI.
// Supervisors can use these to decide whether a restart helps.
const (
	// Success - every chunk was shipped
	Success = 0

	// ConfigError - missing or invalid configuration, including a key format
	// without %{index} once an object is sealed
	// Don't restart: fix the config first
	ConfigError = 1

	// CredentialError - the managed identity token could not be acquired
	CredentialError = 3

	// StorageError - the store rejected an operation
	// Restart with backoff
	StorageError = 4
)

// For maps an error returned by a command to its exit code.
func For(err error) int {
	if err == nil {
		return Success
	}

	var cfgErr *config.Error
	var rotationErr *appendblob.RotationIneffectiveError
	var credErr *credential.CredentialError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &rotationErr), errors.Is(err, appendblob.ErrContainerNotFound):
		return ConfigError
	case errors.As(err, &credErr):
		return CredentialError
	default:
		return StorageError
	}
}
