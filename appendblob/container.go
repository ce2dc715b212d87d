package appendblob

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
)

// ErrContainerNotFound is returned by EnsureContainer when the container is
// missing and automatic creation is disabled.
var ErrContainerNotFound = errors.New("the specified container does not exist")

// EnsureContainer makes sure the container exists before the first append.
func EnsureContainer(ctx context.Context, store Store, container string, autoCreate bool, logger log.Logger) error {
	containers, err := store.ListContainers(ctx)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	for _, name := range containers {
		if name == container {
			logger.Debugf("Container %s exists", container)
			return nil
		}
	}

	if !autoCreate {
		return fmt.Errorf("%w: container = %s", ErrContainerNotFound, container)
	}

	logger.Infof("Creating container %s", container)
	if err := store.CreateContainer(ctx, container); err != nil {
		return fmt.Errorf("create container %s: %w", container, err)
	}

	return nil
}
