package azure

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const account = "devstoreaccount1"

// fakeBlobService speaks the subset of the Blob REST API the store uses.
type fakeBlobService struct {
	blockLimit int

	mu         sync.Mutex
	containers map[string]map[string][]string
	failWith   int
}

func newFakeBlobService(blockLimit int, containers ...string) *fakeBlobService {
	f := &fakeBlobService{blockLimit: blockLimit, containers: map[string]map[string][]string{}}
	for _, c := range containers {
		f.containers[c] = map[string][]string{}
	}
	return f
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	w.Header().Set("x-ms-error-code", code)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
	}
}

func (f *fakeBlobService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != 0 {
		writeError(w, r, f.failWith, "InternalError")
		return
	}

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"+account), "/", 3)
	query := r.URL.Query()

	switch {
	case len(parts) <= 1 || parts[1] == "":
		if query.Get("comp") != "list" {
			writeError(w, r, http.StatusBadRequest, "InvalidQueryParameterValue")
			return
		}
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="utf-8"?><EnumerationResults><Containers>`)
		for name := range f.containers {
			fmt.Fprintf(&b, `<Container><Name>%s</Name><Properties></Properties></Container>`, name)
		}
		b.WriteString(`</Containers><NextMarker/></EnumerationResults>`)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(b.String()))
	case len(parts) == 2:
		if _, ok := f.containers[parts[1]]; ok {
			writeError(w, r, http.StatusConflict, "ContainerAlreadyExists")
			return
		}
		f.containers[parts[1]] = map[string][]string{}
		w.WriteHeader(http.StatusCreated)
	default:
		f.serveBlob(w, r, parts[1], parts[2])
	}
}

func (f *fakeBlobService) serveBlob(w http.ResponseWriter, r *http.Request, container, name string) {
	blobs, ok := f.containers[container]
	if !ok {
		writeError(w, r, http.StatusNotFound, "ContainerNotFound")
		return
	}
	blocks, exists := blobs[name]

	switch {
	case r.Method == http.MethodHead:
		if !exists {
			writeError(w, r, http.StatusNotFound, "BlobNotFound")
			return
		}
		w.Header().Set("x-ms-blob-type", "AppendBlob")
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && r.URL.Query().Get("comp") == "appendblock":
		if !exists {
			writeError(w, r, http.StatusNotFound, "BlobNotFound")
			return
		}
		if f.blockLimit > 0 && len(blocks) >= f.blockLimit {
			writeError(w, r, http.StatusConflict, "BlockCountExceedsLimit")
			return
		}
		body, _ := io.ReadAll(r.Body)
		blobs[name] = append(blocks, string(body))
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodPut:
		if exists && r.Header.Get("If-None-Match") == "*" {
			writeError(w, r, http.StatusConflict, "BlobAlreadyExists")
			return
		}
		blobs[name] = nil
		w.WriteHeader(http.StatusCreated)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "UnsupportedHttpVerb")
	}
}

func (f *fakeBlobService) content(container, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.containers[container][name], "")
}

func newTestStore(t *testing.T, service *fakeBlobService) *Store {
	server := httptest.NewServer(service)
	t.Cleanup(server.Close)

	key := base64.StdEncoding.EncodeToString([]byte("not-a-real-account-key"))
	store, err := NewWithSharedKey(account, key, Options{
		Endpoint: server.URL + "/" + account,
		ClientOptions: &azblob.ClientOptions{
			ClientOptions: policy.ClientOptions{Retry: policy.RetryOptions{MaxRetries: -1}},
		},
		Logger: log.NewLogger(),
	})
	require.NoError(t, err)
	return store
}

func TestStore_AppendLifecycle(t *testing.T) {
	service := newFakeBlobService(2, "logs")
	store := newTestStore(t, service)
	ctx := context.Background()

	err := store.AppendBlock(ctx, "logs", "a.log", []byte("one"))
	assert.Equal(t, appendblob.KindObjectMissing, appendblob.KindOf(err))

	require.NoError(t, store.CreateObject(ctx, "logs", "a.log"))
	require.NoError(t, store.AppendBlock(ctx, "logs", "a.log", []byte("one")))
	require.NoError(t, store.AppendBlock(ctx, "logs", "a.log", []byte("two")))

	err = store.AppendBlock(ctx, "logs", "a.log", []byte("three"))
	assert.Equal(t, appendblob.KindBlockLimitExceeded, appendblob.KindOf(err))

	// creating an existing blob leaves its content alone
	require.NoError(t, store.CreateObject(ctx, "logs", "a.log"))
	assert.Equal(t, "onetwo", service.content("logs", "a.log"))
}

func TestStore_EmptyAppendProbesExistence(t *testing.T) {
	service := newFakeBlobService(0, "logs")
	store := newTestStore(t, service)
	ctx := context.Background()

	err := store.AppendBlock(ctx, "logs", "empty.log", nil)
	assert.Equal(t, appendblob.KindObjectMissing, appendblob.KindOf(err))

	require.NoError(t, store.CreateObject(ctx, "logs", "empty.log"))
	require.NoError(t, store.AppendBlock(ctx, "logs", "empty.log", nil))
}

func TestStore_ObjectExists(t *testing.T) {
	service := newFakeBlobService(0, "logs")
	store := newTestStore(t, service)
	ctx := context.Background()

	exists, err := store.ObjectExists(ctx, "logs", "a.log")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.CreateObject(ctx, "logs", "a.log"))

	exists, err = store.ObjectExists(ctx, "logs", "a.log")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_Containers(t *testing.T) {
	service := newFakeBlobService(0, "logs")
	store := newTestStore(t, service)
	ctx := context.Background()

	names, err := store.ListContainers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"logs"}, names)

	require.NoError(t, store.CreateContainer(ctx, "archive"))
	require.NoError(t, store.CreateContainer(ctx, "archive"))

	names, err = store.ListContainers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"logs", "archive"}, names)
}

func TestStore_OtherErrors(t *testing.T) {
	service := newFakeBlobService(0, "logs")
	service.failWith = http.StatusInternalServerError
	store := newTestStore(t, service)

	err := store.AppendBlock(context.Background(), "logs", "a.log", []byte("x"))

	var storeErr *appendblob.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, appendblob.KindOther, storeErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, storeErr.StatusCode)
}

func TestStore_MissingContainerIsNotAMissingBlob(t *testing.T) {
	service := newFakeBlobService(0)
	store := newTestStore(t, service)

	err := store.AppendBlock(context.Background(), "logs", "a.log", []byte("x"))
	assert.Equal(t, appendblob.KindOther, appendblob.KindOf(err))
}

func TestServiceURL(t *testing.T) {
	assert.Equal(t, "https://acct.blob.core.windows.net/", ServiceURL("acct", ""))
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1/", ServiceURL("acct", "http://127.0.0.1:10000/devstoreaccount1"))
}
