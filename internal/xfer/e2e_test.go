//nolint:errcheck
package xfer_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/SpatiumPortae/xfer/internal/file"
	"github.com/SpatiumPortae/xfer/internal/xfer"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type serverContainer struct {
	testcontainers.Container
	Addr        string
	GatewayAddr string
}

func TestE2E(t *testing.T) {
	if testing.Short() || os.Getenv("XFER_E2E") != "1" {
		t.Skip("skipping E2E test...")
	}
	ctx := context.Background()
	oracle := "A frog walks into a bank..."
	src := filepath.Join(t.TempDir(), "frog.txt")
	require.NoError(t, os.WriteFile(src, []byte(oracle), 0o644))

	serverC, err := setupServer(ctx, src)
	if err != nil {
		t.Fatalf("unable to setup xfer server: %s", err)
	}
	t.Cleanup(func() {
		if err := serverC.Terminate(ctx); err != nil {
			t.Fatal(err)
		}
	})

	for transport, addr := range map[string]string{
		xfer.TransportTCP:       serverC.Addr,
		xfer.TransportWebsocket: serverC.GatewayAddr,
	} {
		t.Run(transport, func(t *testing.T) {
			dir := t.TempDir()
			cfg := &xfer.Config{Transport: transport, Version: "v1.0.0"}
			results, err := xfer.Get(ctx, addr, []string{"frog.txt"}, file.Destination{Dir: dir}, cfg)
			require.NoError(t, err)
			require.Len(t, results, 1)

			out, err := os.ReadFile(filepath.Join(dir, "frog.txt"))
			require.NoError(t, err)
			assert.Equal(t, oracle, string(out))

			_, err = xfer.Get(ctx, addr, []string{"toad.txt"}, file.Destination{Dir: dir}, cfg)
			assert.ErrorIs(t, err, xfer.ErrIncomplete)
		})
	}
}

func setupServer(ctx context.Context, src string) (*serverContainer, error) {
	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			Context:    filepath.Join("..", ".."),
			Dockerfile: "Dockerfile",
		},
		Files: []testcontainers.ContainerFile{{
			HostFilePath:      src,
			ContainerFilePath: "/srv/frog.txt",
			FileMode:          0o644,
		}},
		ExposedPorts: []string{"8080/tcp", "8081/tcp"},
		WaitingFor: wait.ForHTTP("/ping").WithPort(nat.Port("8081/tcp")).WithStatusCodeMatcher(
			func(status int) bool { return status == http.StatusOK }),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, "8080")
	if err != nil {
		return nil, err
	}
	gatewayPort, err := container.MappedPort(ctx, "8081")
	if err != nil {
		return nil, err
	}
	return &serverContainer{
		Container:   container,
		Addr:        fmt.Sprintf("%s:%d", host, port.Int()),
		GatewayAddr: fmt.Sprintf("%s:%d", host, gatewayPort.Int()),
	}, nil
}
