package mdnssd

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrNoNetwork is returned by Start when no usable IPv4 interface address
	// exists.
	ErrNoNetwork = errors.New("mdnssd: no network available")

	// ErrNoSockets is returned by Start when every bind attempt failed.
	ErrNoSockets = errors.New("mdnssd: no socket could be bound")

	// ErrNoServicesFound is passed to the callback when nothing has been
	// discovered within Config.SilenceTimeout. Discovery keeps running.
	ErrNoServicesFound = errors.New("mdnssd: no mDNS services found")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("mdnssd: finder already started")

	// ErrNotStarted is returned by Browse before Start has completed.
	ErrNotStarted = errors.New("mdnssd: finder not started")

	// ErrClosed is returned by operations on a finder that has been shut down.
	ErrClosed = errors.New("mdnssd: finder closed")

	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("mdnssd: invalid config")
)

// BindError reports a socket that could not be bound.
type BindError struct {
	Addr string
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("mdnssd: bind %s:%d: %v", e.Addr, e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// GroupJoinError reports a failed multicast group membership.
type GroupJoinError struct {
	Group netip.Addr
	Err   error
}

func (e *GroupJoinError) Error() string {
	return fmt.Sprintf("mdnssd: join group %s: %v", e.Group, e.Err)
}

func (e *GroupJoinError) Unwrap() error { return e.Err }

// TransportReadError is passed to the callback when a socket stops
// delivering datagrams.
type TransportReadError struct {
	Addr netip.AddrPort
	Err  error
}

func (e *TransportReadError) Error() string {
	return fmt.Sprintf("mdnssd: read on %s: %v", e.Addr, e.Err)
}

func (e *TransportReadError) Unwrap() error { return e.Err }
