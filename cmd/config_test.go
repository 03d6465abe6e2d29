package main

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maeshinshin/mdnssd"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mdnssd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, defaultFileConfig(), cfg)
	})

	t.Run("overrides", func(t *testing.T) {
		path := writeConfig(t, `
service_type: _http._tcp.local
keep_expired: true
notify_delay: 50ms
browse_interval: 1m
metrics_addr: 127.0.0.1:9100
`)
		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "_http._tcp.local", cfg.ServiceType)
		assert.True(t, cfg.KeepExpired)
		assert.Equal(t, 50*time.Millisecond, cfg.NotifyDelay)
		assert.Equal(t, time.Minute, cfg.BrowseInterval)
		assert.Equal(t, mdnssd.DefaultSilenceTimeout, cfg.SilenceTimeout)
		assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := loadConfig(writeConfig(t, "service_type: _http.._tcp.local\n"))
		assert.ErrorIs(t, err, mdnssd.ErrInvalidConfig)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := loadConfig(writeConfig(t, "service_type: [\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestPrintInstances(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	printInstances(&buf, []mdnssd.Instance{
		{Name: "foo", Host: "foo.local", Port: 8080, Address: netip.MustParseAddr("10.0.0.5"), TTL: 120, TXT: []string{"a=1", "b"}},
		{Name: "bar", TTL: 120},
	})

	out := buf.String()
	assert.Contains(t, out, "2 instance(s)")
	assert.Contains(t, out, "foo.local")
	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, "a=1 b")
	assert.Contains(t, out, "bar")
}
