package appendblob

import "context"

// Store is the remote append-only object store the writer appends to.
// Implementations decide the ErrorKind of every failure they return, so the
// writer never looks at transport status codes.
type Store interface {
	// AppendBlock appends block to the end of the named object.
	// A sealed object returns a StoreError of KindBlockLimitExceeded,
	// an absent one a StoreError of KindObjectMissing.
	AppendBlock(ctx context.Context, container, name string, block []byte) error

	// CreateObject creates an empty append-only object.
	// An object that already exists is left untouched and counts as created.
	CreateObject(ctx context.Context, container, name string) error

	// ObjectExists probes the object's properties. A missing object is
	// reported as false, every other failure as an error.
	ObjectExists(ctx context.Context, container, name string) (bool, error)

	// ListContainers returns the names of the containers visible to the client.
	ListContainers(ctx context.Context) ([]string, error)

	// CreateContainer creates the container. An existing container counts as created.
	CreateContainer(ctx context.Context, name string) error
}
