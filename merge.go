package mdnssd

import (
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/maeshinshin/mdnssd/dnswire"
)

// merge copies the fields present in u into inst and reports whether inst
// changed. Zero fields in u are absent and never erase a value. Priority and
// weight travel with the SRV record, so they are taken whenever u carries a
// host or port.
func (inst *Instance) merge(u Instance) bool {
	changed := false
	if u.Host != "" && u.Host != inst.Host {
		inst.Host = u.Host
		changed = true
	}
	if u.Port != 0 && u.Port != inst.Port {
		inst.Port = u.Port
		changed = true
	}
	if u.Host != "" || u.Port != 0 {
		if u.Priority != inst.Priority || u.Weight != inst.Weight {
			inst.Priority, inst.Weight = u.Priority, u.Weight
			changed = true
		}
	}
	if u.Address.IsValid() && u.Address != inst.Address {
		inst.Address = u.Address
		changed = true
	}
	if len(u.TXT) > 0 && !slices.Equal(u.TXT, inst.TXT) {
		inst.TXT = slices.Clone(u.TXT)
		changed = true
	}
	if u.TTL != 0 && u.TTL != inst.TTL {
		inst.TTL = u.TTL
		changed = true
	}
	if u.Source.IsValid() && u.Source != inst.Source {
		inst.Source = u.Source
		changed = true
	}
	return changed
}

// mergePacket applies one response to the registry and reports whether any
// instance was added, changed or removed. PTR answers create instances, then
// SRV records locate them, then TXT and A records enrich them. Callers hold
// f.mu.
func (f *Finder) mergePacket(pkt *dnswire.Packet, from netip.AddrPort) bool {
	changed := false
	// current is the instance most recently resolved in this packet; records
	// with an empty owner name belong to it.
	var current *Instance

	for _, rec := range pkt.Answers {
		if rec.Type != dnswire.TypePTR {
			continue
		}
		target, err := dnswire.AsPTRTarget(rec)
		if err != nil {
			logger.Debug("Skipping PTR record", "error", err)
			continue
		}
		if !strings.EqualFold(rec.Name, f.cfg.ServiceType) {
			logger.Debug("Ignoring PTR record for another service type", "name", rec.Name, "target", target)
			continue
		}
		inst, c := f.applyPTR(target, rec.TTL, from)
		changed = c || changed
		if inst != nil {
			current = inst
		}
	}

	records := make([]dnswire.Record, 0, len(pkt.Answers)+len(pkt.Additionals))
	records = append(records, pkt.Answers...)
	records = append(records, pkt.Additionals...)

	for _, rec := range records {
		if rec.Type != dnswire.TypeSRV {
			continue
		}
		srv, err := dnswire.AsSRV(rec)
		if err != nil {
			logger.Debug("Skipping SRV record", "error", err)
			continue
		}
		inst := f.lookup(rec.Name, current)
		if inst == nil {
			logger.Debug("Discarding SRV record without a matching instance", "name", rec.Name, "from", from)
			continue
		}
		u := Instance{Host: srv.Target, Port: srv.Port, Priority: srv.Priority, Weight: srv.Weight}
		if h, ok := f.hosts[strings.ToLower(srv.Target)]; ok {
			u.Address = h.addr
		}
		changed = inst.merge(u) || changed
		current = inst
	}

	for _, rec := range records {
		switch rec.Type {
		case dnswire.TypeTXT:
			txt, err := dnswire.AsTXTList(rec)
			if err != nil {
				logger.Debug("Skipping TXT record", "error", err)
				continue
			}
			if inst := f.lookup(rec.Name, current); inst != nil {
				changed = inst.merge(Instance{TXT: txt}) || changed
			}

		case dnswire.TypeA:
			addr, err := dnswire.AsAddress(rec)
			if err != nil {
				logger.Debug("Skipping A record", "error", err)
				continue
			}
			if rec.Name == "" {
				if current != nil {
					changed = current.merge(Instance{Address: addr}) || changed
				}
				continue
			}
			f.rememberHost(rec.Name, addr, rec.TTL)
			for _, inst := range f.instances {
				if strings.EqualFold(inst.Host, rec.Name) {
					changed = inst.merge(Instance{Address: addr}) || changed
				}
			}
		}
	}
	return changed
}

// applyPTR creates or refreshes the instance a PTR answer names. A zero TTL
// is a goodbye and removes the instance when expiry is enabled.
func (f *Finder) applyPTR(target string, ttl uint32, from netip.AddrPort) (*Instance, bool) {
	key := f.key(target)
	inst, ok := f.instances[key]

	if ttl == 0 {
		if f.cfg.KeepExpired || !ok {
			return inst, false
		}
		logger.Info("Service instance said goodbye", "instance", inst.ID, "from", from)
		f.remove(key)
		return nil, true
	}

	changed := false
	if !ok {
		inst = &Instance{
			ID:   instanceID(target, f.cfg.ServiceType),
			Name: instanceName(target, f.cfg.ServiceType),
			Type: f.cfg.ServiceType,
		}
		f.instances[key] = inst
		changed = true
		logger.Info("Discovered service instance", "instance", inst.ID, "from", from)
	}
	changed = inst.merge(Instance{TTL: ttl, Source: from}) || changed

	if !f.cfg.KeepExpired {
		f.armExpiry(key, ttl)
	}
	return inst, changed
}

func (f *Finder) key(name string) string {
	return strings.ToLower(instanceID(name, f.cfg.ServiceType))
}

func (f *Finder) lookup(name string, current *Instance) *Instance {
	if name == "" {
		return current
	}
	return f.instances[f.key(name)]
}

// armExpiry replaces the expiry timer of key. The generation lets a timer
// that fired just before being replaced recognise itself as stale.
func (f *Finder) armExpiry(key string, ttl uint32) {
	if t, ok := f.expiry[key]; ok {
		t.timer.Stop()
	}
	f.expiryGen++
	gen := f.expiryGen
	timer := f.clock.AfterFunc(time.Duration(ttl)*time.Second, func() {
		f.post(event{kind: expireEv, key: key, gen: gen})
	})
	f.expiry[key] = expiryTimer{timer: timer, gen: gen}
}

func (f *Finder) remove(key string) {
	if t, ok := f.expiry[key]; ok {
		t.timer.Stop()
		delete(f.expiry, key)
	}
	delete(f.instances, key)
}

// rememberHost caches an address record so an SRV record naming the host
// in a later packet can still be resolved.
func (f *Finder) rememberHost(name string, addr netip.Addr, ttl uint32) {
	key := strings.ToLower(name)
	if ttl == 0 {
		delete(f.hosts, key)
		return
	}
	f.hosts[key] = hostAddr{addr: addr, expires: f.clock.Now().Add(time.Duration(ttl) * time.Second)}
}

func (f *Finder) pruneHosts() {
	now := f.clock.Now()
	for key, h := range f.hosts {
		if !h.expires.After(now) {
			delete(f.hosts, key)
		}
	}
}
