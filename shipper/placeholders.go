package shipper

import (
	"strings"

	"github.com/bitrise-io/go-appendblob/appendblob/objectkey"
)

// Placeholders owned by the shipper. They are expanded after the object key
// format was rendered, so they never collide with %{...} placeholders.
const (
	PlaceholderTag      = "${tag}"
	PlaceholderChunkID  = "${chunk_id}"
	PlaceholderWorkerID = "${worker_id}"

	variableWorkerID = "worker_id"
)

// Expander returns the shipper's placeholder pass.
func Expander() objectkey.Expander {
	return objectkey.ExpanderFunc(expand)
}

func expand(name string, meta objectkey.Metadata) string {
	if !strings.Contains(name, "${") {
		return name
	}
	replacer := strings.NewReplacer(
		PlaceholderTag, meta.Tag,
		PlaceholderChunkID, meta.ChunkID,
		PlaceholderWorkerID, meta.Variables[variableWorkerID],
	)
	return replacer.Replace(name)
}
