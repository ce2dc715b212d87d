package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/bitrise-io/go-appendblob/config"
	"github.com/bitrise-io/go-appendblob/credential"
	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "No error", err: nil, want: Success},
		{name: "Config", err: &config.Error{Err: errors.New("missing")}, want: ConfigError},
		{name: "Ineffective rotation", err: fmt.Errorf("ship: %w", &appendblob.RotationIneffectiveError{Name: "a.log"}), want: ConfigError},
		{name: "Missing container", err: fmt.Errorf("%w: container = logs", appendblob.ErrContainerNotFound), want: ConfigError},
		{name: "Credential", err: &credential.CredentialError{StatusCode: 400, Err: errors.New("identity not found")}, want: CredentialError},
		{name: "Store", err: &appendblob.StoreError{Kind: appendblob.KindOther, StatusCode: 500}, want: StorageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, For(tt.err))
		})
	}
}
