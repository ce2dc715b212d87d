package shipper

import (
	"testing"

	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	dir := t.TempDir()

	ledger, err := OpenLedger(dir)
	require.NoError(t, err)

	offset, err := ledger.Offset("/var/log/app.log")
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)

	state, err := ledger.State(0)
	require.NoError(t, err)
	assert.Equal(t, appendblob.NameState{}, state)

	want := appendblob.NameState{Current: "20240301-2.log", Previous: "20240301-2.log", Index: 2}
	require.NoError(t, ledger.Commit("/var/log/app.log", 1234, 0, want))
	require.NoError(t, ledger.SaveState(1, appendblob.NameState{Current: "x-1.log", Index: 1}))
	require.NoError(t, ledger.Close())

	reopened, err := OpenLedger(dir)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	offset, err = reopened.Offset("/var/log/app.log")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), offset)

	state, err = reopened.State(0)
	require.NoError(t, err)
	assert.Equal(t, want, state)

	state, err = reopened.State(1)
	require.NoError(t, err)
	assert.Equal(t, appendblob.NameState{Current: "x-1.log", Index: 1}, state)
}

func TestOpenLedger_RequiresDir(t *testing.T) {
	_, err := OpenLedger("")
	assert.Error(t, err)
}
