package mdnssd

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPTransportLoopback(t *testing.T) {
	tr := NewUDPTransport()
	c, err := tr.Bind(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)
	defer c.Close()

	local := c.LocalAddr()
	require.True(t, local.IsValid())
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), local.Addr())
	assert.NotZero(t, local.Port())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Send(ctx, []byte("ping"), local))

	buf := make([]byte, 16)
	n, from, err := c.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.Equal(t, local, from)
}

func TestUDPTransportClose(t *testing.T) {
	c, err := NewUDPTransport().Bind(context.Background(), "127.0.0.1", 0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, _, err := c.ReadFrom(make([]byte, 16))
		done <- err
	}()
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("ReadFrom did not return after Close")
	}
}

func TestUDPTransportBindError(t *testing.T) {
	_, err := NewUDPTransport().Bind(context.Background(), "127.0.0.1", -1)
	var berr *BindError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "127.0.0.1", berr.Addr)
	assert.Equal(t, -1, berr.Port)
}
