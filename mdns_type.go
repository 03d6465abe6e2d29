package mdnssd

import (
	"context"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Callback receives change notifications and failures. A nil err means the
// registry changed and Instances should be read again.
type Callback func(err error)

// Instance is one discovered service endpoint, identified by ID (instance
// name plus service type).
type Instance struct {
	ID       string
	Name     string
	Type     string
	Host     string
	Port     uint16
	Priority uint16
	Weight   uint16
	Address  netip.Addr
	TXT      []string
	TTL      uint32

	// Source is the responder the PTR answer came from.
	Source netip.AddrPort
}

func (i Instance) clone() Instance {
	i.TXT = slices.Clone(i.TXT)
	return i
}

// State is the lifecycle stage of a Finder.
type State int32

const (
	StateInitializing State = iota
	StateActive
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting down"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Finder browses one service type. It is single use: once shut down it
// cannot be started again.
type Finder struct {
	cfg        Config
	callback   Callback
	transport  Transport
	clock      clock.Clock
	registerer prometheus.Registerer
	metrics    *metrics
	query      []byte

	started atomic.Bool
	state   atomic.Int32

	// mu guards everything below up to conns.
	mu           sync.RWMutex
	instances    map[string]*Instance
	hosts        map[string]hostAddr
	expiry       map[string]expiryTimer
	expiryGen    uint64
	pending      bool
	notifyTimer  *clock.Timer
	silenceTimer *clock.Timer

	conns    []Conn
	ticker   *clock.Ticker
	events   chan event
	shutdown chan struct{}
	readers  sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option configures a Finder.
type Option func(*Finder)

// WithTransport replaces the UDP transport.
func WithTransport(t Transport) Option {
	return func(f *Finder) { f.transport = t }
}

// WithClock replaces the wall clock used for every timer.
func WithClock(c clock.Clock) Option {
	return func(f *Finder) { f.clock = c }
}

// WithRegisterer registers the finder's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(f *Finder) { f.registerer = reg }
}

type expiryTimer struct {
	timer *clock.Timer
	gen   uint64
}

type hostAddr struct {
	addr    netip.Addr
	expires time.Time
}

type eventKind int

const (
	datagramEv eventKind = iota
	readErrorEv
	notifyEv
	expireEv
	silenceEv
)

type event struct {
	kind    eventKind
	from    netip.AddrPort
	payload []byte
	key     string
	gen     uint64
	err     error
}
