// Package azure implements appendblob.Store on Azure Storage append blobs.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	azappendblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/appendblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/bitrise-io/go-appendblob/appendblob"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Options configures the service client.
type Options struct {
	// Endpoint overrides the account's default blob endpoint, e.g. for Azurite.
	Endpoint      string
	ClientOptions *azblob.ClientOptions
	Logger        log.Logger
}

// Store appends to append blobs of one storage account.
type Store struct {
	client *azblob.Client
	logger log.Logger
}

var _ appendblob.Store = (*Store)(nil)

// NewWithSharedKey authenticates with the account access key.
func NewWithSharedKey(account, key string, opts Options) (*Store, error) {
	cred, err := azblob.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, fmt.Errorf("invalid storage access key: %w", err)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(ServiceURL(account, opts.Endpoint), cred, opts.ClientOptions)
	if err != nil {
		return nil, err
	}
	return newStore(client, opts), nil
}

// NewWithSAS authenticates every request with a shared access signature.
func NewWithSAS(account, sas string, opts Options) (*Store, error) {
	serviceURL := ServiceURL(account, opts.Endpoint) + "?" + strings.TrimPrefix(sas, "?")
	client, err := azblob.NewClientWithNoCredential(serviceURL, opts.ClientOptions)
	if err != nil {
		return nil, err
	}
	return newStore(client, opts), nil
}

// NewWithTokenCredential authenticates with bearer tokens, e.g. from a managed identity.
func NewWithTokenCredential(account string, cred azcore.TokenCredential, opts Options) (*Store, error) {
	client, err := azblob.NewClient(ServiceURL(account, opts.Endpoint), cred, opts.ClientOptions)
	if err != nil {
		return nil, err
	}
	return newStore(client, opts), nil
}

func newStore(client *azblob.Client, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Store{client: client, logger: logger}
}

// ServiceURL returns the endpoint when set, the account's public blob endpoint otherwise.
func ServiceURL(account, endpoint string) string {
	if endpoint == "" {
		return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return endpoint
}

func (s *Store) AppendBlock(ctx context.Context, container, name string, block []byte) error {
	if len(block) == 0 {
		return s.probeEmptyAppend(ctx, container, name)
	}

	client := s.appendBlobClient(container, name)
	_, err := client.AppendBlock(ctx, streaming.NopCloser(bytes.NewReader(block)), nil)
	return classify(err)
}

// probeEmptyAppend stands in for a zero length append, which the service rejects.
func (s *Store) probeEmptyAppend(ctx context.Context, container, name string) error {
	exists, err := s.ObjectExists(ctx, container, name)
	if err != nil {
		return err
	}
	if !exists {
		return &appendblob.StoreError{Kind: appendblob.KindObjectMissing, StatusCode: http.StatusNotFound}
	}
	return nil
}

func (s *Store) CreateObject(ctx context.Context, container, name string) error {
	client := s.appendBlobClient(container, name)
	_, err := client.Create(ctx, &azappendblob.CreateOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		},
	})
	if alreadyExists(err) {
		s.logger.Debugf("Blob %s/%s already exists", container, name)
		return nil
	}
	return classify(err)
}

func (s *Store) ObjectExists(ctx context.Context, container, name string) (bool, error) {
	client := s.client.ServiceClient().NewContainerClient(container).NewBlobClient(name)
	_, err := client.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if blobNotFound(err) {
		return false, nil
	}
	return false, classify(err)
}

func (s *Store) ListContainers(ctx context.Context) ([]string, error) {
	var names []string

	pager := s.client.NewListContainersPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, item := range page.ContainerItems {
			if item != nil && item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}

	return names, nil
}

func (s *Store) CreateContainer(ctx context.Context, name string) error {
	_, err := s.client.CreateContainer(ctx, name, nil)
	if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil
	}
	return classify(err)
}

func (s *Store) appendBlobClient(container, name string) *azappendblob.Client {
	return s.client.ServiceClient().NewContainerClient(container).NewAppendBlobClient(name)
}
