package appendblob

import (
	"fmt"
	"testing"
	"time"

	"github.com/bitrise-io/go-appendblob/appendblob/objectkey"
	"github.com/stretchr/testify/assert"
)

type bucketNames struct{}

func (bucketNames) Generate(meta objectkey.Metadata, index int) string {
	return fmt.Sprintf("%s-%d.log", meta.TimeKey.UTC().Format("20060102"), index)
}

func TestResolveName(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	tests := []struct {
		name  string
		state NameState
		key   time.Time
		want  NameState
	}{
		{
			name:  "Fresh writer starts at index 0",
			state: NameState{},
			key:   day1,
			want:  NameState{Current: "20240301-0.log", Index: 0},
		},
		{
			name:  "Same bucket keeps the rotated index",
			state: NameState{Current: "20240301-2.log", Previous: "20240301-2.log", Index: 2},
			key:   day1,
			want:  NameState{Current: "20240301-2.log", Previous: "20240301-2.log", Index: 2},
		},
		{
			name:  "New bucket resets the index",
			state: NameState{Current: "20240301-2.log", Previous: "20240301-2.log", Index: 2},
			key:   day2,
			want:  NameState{Current: "20240302-0.log", Previous: "20240301-2.log", Index: 0},
		},
		{
			name:  "Index of a failed chunk is dropped when the name does not match the last success",
			state: NameState{Current: "20240301-3.log", Previous: "20240301-2.log", Index: 3},
			key:   day1,
			want:  NameState{Current: "20240301-0.log", Previous: "20240301-2.log", Index: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := tt.key
			got := resolveName(bucketNames{}, tt.state, objectkey.Metadata{TimeKey: &key})
			assert.Equal(t, tt.want, got)
		})
	}
}
