package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMemory_PatternDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMemory()
	ch, err := m.Subscribe(ctx, "features.*")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	_ = m.Publish(ctx, "intents", []byte("ignored"))
	_ = m.Publish(ctx, "features.arbitrum", []byte("amm"))

	select {
	case got := <-ch:
		if string(got) != "amm" {
			t.Errorf("got %q, want amm", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	cancel()
	for range ch {
	}
}

func TestIsPattern(t *testing.T) {
	tests := []struct {
		channel string
		want    bool
	}{
		{"features", false},
		{"features.*", true},
		{"chain.[12]", true},
		{"outcomes?", true},
	}
	for _, tt := range tests {
		if got := isPattern(tt.channel); got != tt.want {
			t.Errorf("isPattern(%q) = %v, want %v", tt.channel, got, tt.want)
		}
	}
}

func TestClient_PublishSubscribe_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := New(ctx, Config{Addr: host + ":" + port.Port()})
	require.NoError(t, err)
	defer client.Close()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := client.Subscribe(subCtx, "intents")
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, "intents", []byte(`{"id":"1"}`)))

	select {
	case got := <-ch:
		require.Equal(t, `{"id":"1"}`, string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for published message")
	}
}
