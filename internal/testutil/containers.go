// Package testutil starts throwaway backend containers for store tests.
// Tests that need a container are skipped when Docker is not available.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type sharedContainer struct {
	once     sync.Once
	endpoint string
	err      error
}

var (
	redisC sharedContainer
	mongoC sharedContainer
)

// GetRedisAddress returns host:port of a shared Redis container.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	return redisC.start(t, "redis:7",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	)
}

// GetMongoURI returns a mongodb:// URI of a shared MongoDB container.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	endpoint := mongoC.start(t, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("Waiting for connections"),
		),
	)
	return fmt.Sprintf("mongodb://%s", endpoint)
}

func (c *sharedContainer) start(t *testing.T, image string, opts ...testcontainers.ContainerCustomizer) string {
	t.Helper()

	c.once.Do(func() {
		// testcontainers panics on some hosts without a Docker socket.
		defer func() {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("start %s: %v", image, r)
			}
		}()

		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		container, err := testcontainers.Run(ctx, image, opts...)
		if err != nil {
			c.err = err
			return
		}

		// The container outlives the first test; the testcontainers reaper
		// removes it when the test binary exits.
		endpoint, err := container.Endpoint(ctx, "")
		if err != nil {
			_ = container.Terminate(context.Background()) // best-effort cleanup
			c.err = err
			return
		}
		c.endpoint = endpoint
	})

	if c.err != nil {
		t.Skipf("container %s unavailable: %v", image, c.err)
	}
	return c.endpoint
}
