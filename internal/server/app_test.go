package server

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.ShutdownGracePeriod = time.Second
	return c
}

func TestNewApp_Memory(t *testing.T) {
	var buf bytes.Buffer
	app, err := newApp(context.Background(), testConfig(), &buf)
	require.NoError(t, err)
	require.NotNil(t, app.server)

	assert.Contains(t, buf.String(), "default secret key")
}

func TestNewApp_Errors(t *testing.T) {
	cases := map[string]func(*config.Config){
		"bad log backend": func(c *config.Config) { c.LogBackend = "syslog" },
		"bad log level":   func(c *config.Config) { c.LogLevel = "loud" },
		"bad dsn scheme":  func(c *config.Config) { c.DatabaseDSN = "redis://localhost" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := testConfig()
			mutate(c)
			_, err := newApp(context.Background(), c, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	app, err := newApp(context.Background(), testConfig(), &buf)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Contains(t, buf.String(), "App stopped")
}
