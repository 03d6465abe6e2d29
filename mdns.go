package mdnssd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/maeshinshin/mdnssd/dnswire"
)

const (
	mdnsMulticastAddressStr = "224.0.0.251"
	mdnsPort                = 5353
	maxDatagramSize         = 9000
	eventQueueSize          = 64
)

var (
	mdnsMulticastAddress = netip.MustParseAddr(mdnsMulticastAddressStr)
	mdnsGroup            = netip.AddrPortFrom(mdnsMulticastAddress, mdnsPort)
	logger               = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// New creates a finder for cfg.ServiceType. Nothing touches the network
// until Start.
func New(callback Callback, cfg Config, opts ...Option) (*Finder, error) {
	if callback == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	query, err := buildQuery(cfg.ServiceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	f := &Finder{
		cfg:       cfg,
		callback:  callback,
		transport: NewUDPTransport(),
		clock:     clock.New(),
		query:     query,
		instances: make(map[string]*Instance),
		hosts:     make(map[string]hostAddr),
		expiry:    make(map[string]expiryTimer),
		events:    make(chan event, eventQueueSize),
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.metrics = newMetrics(f.registerer)
	f.ctx, f.cancel = context.WithCancel(context.Background())
	return f, nil
}

// Start binds a socket on every IPv4 interface address plus one on the mDNS
// group, then sends the first query. It returns once the finder is active.
func (f *Finder) Start(ctx context.Context) error {
	if f.State() != StateInitializing {
		return ErrClosed
	}
	if !f.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	conns, err := f.openSockets(ctx)
	if err != nil {
		f.state.Store(int32(StateClosed))
		return err
	}

	f.conns = conns
	if f.cfg.BrowseInterval > 0 {
		f.ticker = f.clock.Ticker(f.cfg.BrowseInterval)
	}
	if f.cfg.SilenceTimeout > 0 {
		f.mu.Lock()
		f.silenceTimer = f.clock.AfterFunc(f.cfg.SilenceTimeout, func() {
			f.post(event{kind: silenceEv})
		})
		f.mu.Unlock()
	}
	// Shutdown waits on readers as soon as the state is Active.
	f.readers.Add(len(conns))

	if !f.state.CompareAndSwap(int32(StateInitializing), int32(StateActive)) {
		// shut down while binding
		f.readers.Add(-len(conns))
		if f.ticker != nil {
			f.ticker.Stop()
		}
		f.mu.Lock()
		f.stopTimers()
		f.mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
		return ErrClosed
	}

	for _, c := range conns {
		go f.listen(c)
	}
	go f.run()

	logger.Info("Browsing for services", "type", f.cfg.ServiceType, "sockets", len(conns))
	if err := f.Browse(ctx); err != nil {
		logger.Warn("Initial query incomplete", "error", err)
	}
	return nil
}

func (f *Finder) openSockets(ctx context.Context) ([]Conn, error) {
	addrs, err := f.transport.Interfaces(ctx)
	if err != nil {
		if errors.Is(err, ErrNoNetwork) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNoNetwork, err)
	}
	addrs = validAddresses(addrs)
	if len(addrs) == 0 {
		return nil, ErrNoNetwork
	}

	conns, bindErr := f.bindAll(ctx, addrs)
	if c, err := f.bindGroup(ctx); err != nil {
		bindErr = multierr.Append(bindErr, err)
	} else {
		conns = append(conns, c)
	}

	if len(conns) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoSockets, bindErr)
	}
	if bindErr != nil {
		logger.Warn("Some sockets could not be bound", "error", bindErr)
	}
	return conns, nil
}

// bindAll binds one socket per address concurrently and keeps the ones that
// succeeded.
func (f *Finder) bindAll(ctx context.Context, addrs []string) ([]Conn, error) {
	results := make([]Conn, len(addrs))
	errs := make([]error, len(addrs))

	var g errgroup.Group
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			c, err := f.transport.Bind(ctx, addr, 0)
			if err != nil {
				errs[i] = err
				return nil
			}
			logger.Debug("Bound socket", "addr", c.LocalAddr())
			results[i] = c
			return nil
		})
	}
	_ = g.Wait()

	conns := slices.DeleteFunc(results, func(c Conn) bool { return c == nil })
	return conns, multierr.Combine(errs...)
}

func (f *Finder) bindGroup(ctx context.Context) (Conn, error) {
	c, err := f.transport.Bind(ctx, "0.0.0.0", mdnsPort)
	if err != nil {
		return nil, err
	}
	if err := c.JoinGroup(mdnsMulticastAddress); err != nil {
		logger.Warn("Failed to join mDNS group", "error", err)
		c.Close()
		return nil, err
	}
	return c, nil
}

func (f *Finder) listen(c Conn) {
	defer f.readers.Done()
	logger.Debug("Starting mDNS listener", "address", c.LocalAddr())

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := c.ReadFrom(buf)
		if err != nil {
			select {
			case <-f.shutdown:
				return
			default:
			}
			logger.Error("Failed to read from UDP", "error", err, "address", c.LocalAddr())
			f.post(event{kind: readErrorEv, err: &TransportReadError{Addr: c.LocalAddr(), Err: err}})
			return
		}
		f.post(event{kind: datagramEv, from: from, payload: bytes.Clone(buf[:n])})
	}
}

// post hands ev to the browse loop unless the finder is shutting down.
func (f *Finder) post(ev event) {
	select {
	case f.events <- ev:
	case <-f.shutdown:
	}
}

func (f *Finder) run() {
	var tick <-chan time.Time
	if f.ticker != nil {
		tick = f.ticker.C
	}

	for {
		select {
		case ev := <-f.events:
			f.handleEvent(ev)

		case <-tick:
			if err := f.Browse(f.ctx); err != nil {
				logger.Warn("Periodic query incomplete", "error", err)
			}

		case <-f.shutdown:
			logger.Debug("Stopping mDNS browse loop")
			return
		}
	}
}

func (f *Finder) handleEvent(ev event) {
	switch ev.kind {
	case datagramEv:
		f.metrics.datagrams.Inc()
		f.handleDatagram(ev.from, ev.payload)

	case readErrorEv:
		f.notify(ev.err)

	case notifyEv:
		f.mu.Lock()
		f.pending = false
		f.notifyTimer = nil
		f.mu.Unlock()
		f.notify(nil)

	case expireEv:
		f.handleExpiry(ev.key, ev.gen)

	case silenceEv:
		f.mu.RLock()
		empty := len(f.instances) == 0
		f.mu.RUnlock()
		if empty {
			logger.Warn("No services found", "type", f.cfg.ServiceType, "after", f.cfg.SilenceTimeout)
			f.notify(ErrNoServicesFound)
		}
	}
}

func (f *Finder) handleDatagram(from netip.AddrPort, payload []byte) {
	pkt, err := dnswire.Decode(payload)
	if err != nil {
		f.metrics.malformed.Inc()
		logger.Debug("Dropping malformed datagram", "from", from, "error", err)
		return
	}
	if !pkt.Response {
		return
	}
	logger.Debug("Received response", "from", from, "answers", len(pkt.Answers), "additionals", len(pkt.Additionals))

	// The notify timer is armed under the same lock, so a reader that sees
	// the change also sees the pending notification. Every response arms
	// it, so re-announcements of known instances are reported too.
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneHosts()
	if f.mergePacket(pkt, from) {
		f.metrics.instances.Set(float64(len(f.instances)))
	}
	f.scheduleNotify()
}

func (f *Finder) handleExpiry(key string, gen uint64) {
	f.mu.Lock()
	t, ok := f.expiry[key]
	if !ok || t.gen != gen {
		f.mu.Unlock()
		return
	}
	if inst, ok := f.instances[key]; ok {
		logger.Info("Service instance expired", "instance", inst.ID)
	}
	f.remove(key)
	f.metrics.expired.Inc()
	f.metrics.instances.Set(float64(len(f.instances)))
	f.scheduleNotify()
	f.mu.Unlock()

	if err := f.Browse(f.ctx); err != nil {
		logger.Warn("Re-query after expiry incomplete", "error", err)
	}
}

// scheduleNotify arms the debounce timer unless one is pending. Callers hold
// f.mu.
func (f *Finder) scheduleNotify() {
	if f.pending {
		return
	}
	f.pending = true
	f.notifyTimer = f.clock.AfterFunc(f.cfg.NotifyDelay, func() {
		f.post(event{kind: notifyEv})
	})
}

func (f *Finder) notify(err error) {
	if f.State() != StateActive {
		return
	}
	f.callback(err)
}

// Browse sends the PTR query on every socket. It can be called at any time
// while the finder is active; the registry is left as it is.
func (f *Finder) Browse(ctx context.Context) error {
	switch f.State() {
	case StateInitializing:
		return ErrNotStarted
	case StateShuttingDown, StateClosed:
		return ErrClosed
	}

	var errs error
	for _, c := range f.conns {
		if err := c.Send(ctx, f.query, mdnsGroup); err != nil {
			f.metrics.sendFailures.Inc()
			logger.Error("Failed to send query", "error", err, "address", c.LocalAddr())
			errs = multierr.Append(errs, fmt.Errorf("send query from %s: %w", c.LocalAddr(), err))
			continue
		}
		f.metrics.queries.Inc()
	}
	logger.Debug("Sent query", "type", f.cfg.ServiceType, "sockets", len(f.conns))
	return errs
}

// Instances returns a snapshot of the registry sorted by ID.
func (f *Finder) Instances() []Instance {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Instance, 0, len(f.instances))
	for _, inst := range f.instances {
		out = append(out, inst.clone())
	}
	slices.SortFunc(out, func(a, b Instance) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Services returns the sorted instance names, restricted to those answered
// from ip when ip is not empty.
func (f *Finder) Services(ip string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make(map[string]struct{})
	for _, inst := range f.instances {
		if ip != "" && (!inst.Source.IsValid() || inst.Source.Addr().String() != ip) {
			continue
		}
		names[inst.Name] = struct{}{}
	}
	return sortedKeys(names)
}

// IPs returns the addresses of responders in numeric order, restricted to
// those answering for the instance named service when service is not empty.
func (f *Finder) IPs(service string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ips := make(map[string]struct{})
	for _, inst := range f.instances {
		if !inst.Source.IsValid() || (service != "" && inst.Name != service) {
			continue
		}
		ips[inst.Source.Addr().String()] = struct{}{}
	}
	return sortIPs(sortedKeys(ips))
}

// State returns the current lifecycle stage.
func (f *Finder) State() State {
	return State(f.state.Load())
}

// Shutdown stops listening, cancels every timer and closes the sockets. The
// callback is not invoked once Shutdown has begun. Calling it again is a
// no-op.
func (f *Finder) Shutdown() error {
	if f.state.CompareAndSwap(int32(StateInitializing), int32(StateClosed)) {
		f.cancel()
		return nil
	}
	if !f.state.CompareAndSwap(int32(StateActive), int32(StateShuttingDown)) {
		return nil
	}

	logger.Info("Shutting down service finder", "type", f.cfg.ServiceType)
	close(f.shutdown)
	f.cancel()
	if f.ticker != nil {
		f.ticker.Stop()
	}

	f.mu.Lock()
	f.stopTimers()
	f.mu.Unlock()

	var errs error
	for _, c := range f.conns {
		errs = multierr.Append(errs, c.Close())
	}
	f.readers.Wait()

	f.state.Store(int32(StateClosed))
	return errs
}

func (f *Finder) stopTimers() {
	if f.silenceTimer != nil {
		f.silenceTimer.Stop()
		f.silenceTimer = nil
	}
	if f.notifyTimer != nil {
		f.notifyTimer.Stop()
		f.notifyTimer = nil
	}
	f.pending = false
	for key, t := range f.expiry {
		t.timer.Stop()
		delete(f.expiry, key)
	}
}
