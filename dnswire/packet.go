// Package dnswire encodes and decodes the subset of the DNS message format
// used by multicast DNS service discovery.
//
// Packets are built and parsed with golang.org/x/net/dns/dnsmessage. This
// package adds the mDNS view on top of it: names without the trailing root
// dot, the cache-flush bit split out of the class field, and a closed set of
// record payloads (PTR, SRV, TXT, A and opaque Unknown data).
package dnswire

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/net/dns/dnsmessage"
)

// cacheFlushBit is the top bit of the class field. In answers it marks a
// unique record set (RFC 6762 §10.2), in questions it requests a unicast
// response (RFC 6762 §5.4).
const cacheFlushBit = 1 << 15

// Type is a DNS resource record type.
type Type uint16

const (
	TypeA   Type = 1
	TypePTR Type = 12
	TypeTXT Type = 16
	TypeSRV Type = 33
)

func (t Type) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypePTR:
		return "PTR"
	case TypeTXT:
		return "TXT"
	case TypeSRV:
		return "SRV"
	}
	return fmt.Sprintf("TYPE%d", uint16(t))
}

// Class is a DNS class with the mDNS cache-flush bit removed.
type Class uint16

// ClassINET is the only class used by mDNS.
const ClassINET Class = 1

// Packet is a DNS message. Sections keep their wire order.
type Packet struct {
	ID       uint16
	Response bool

	Questions   []Record
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Record is a question or resource record. Questions carry no TTL and a nil
// Data; records in the other sections always carry Data.
type Record struct {
	Name       string
	Type       Type
	Class      Class
	CacheFlush bool
	TTL        uint32
	Data       RecordData
}

func (r Record) String() string {
	if r.Data == nil {
		return fmt.Sprintf("%s %s ?", r.Name, r.Type)
	}
	return fmt.Sprintf("%s %d %s %v", r.Name, r.TTL, r.Type, r.Data)
}

// NewQuery returns a single-question PTR query for name.
func NewQuery(name string) *Packet {
	return &Packet{
		Questions: []Record{{Name: name, Type: TypePTR, Class: ClassINET}},
	}
}

// Encode serializes p. Only Packet.ID and Packet.Response are carried in the
// header; responses are marked authoritative as mDNS requires. Names shared
// between records are compressed.
func Encode(p *Packet) ([]byte, error) {
	b := dnsmessage.NewBuilder(make([]byte, 0, 512), dnsmessage.Header{
		ID:            p.ID,
		Response:      p.Response,
		Authoritative: p.Response,
	})
	b.EnableCompression()

	if err := b.StartQuestions(); err != nil {
		return nil, err
	}
	for i, q := range p.Questions {
		name, err := newName(q.Name)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if err := b.Question(dnsmessage.Question{
			Name:  name,
			Type:  dnsmessage.Type(q.Type),
			Class: packClass(q.Class, q.CacheFlush),
		}); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}

	sections := []struct {
		section Section
		start   func() error
		records []Record
	}{
		{SectionAnswer, b.StartAnswers, p.Answers},
		{SectionAuthority, b.StartAuthorities, p.Authorities},
		{SectionAdditional, b.StartAdditionals, p.Additionals},
	}
	for _, s := range sections {
		if err := s.start(); err != nil {
			return nil, err
		}
		for i, r := range s.records {
			if err := addResource(&b, r); err != nil {
				return nil, fmt.Errorf("%s %d: %w", s.section, i, err)
			}
		}
	}

	return b.Finish()
}

func addResource(b *dnsmessage.Builder, r Record) error {
	name, err := newName(r.Name)
	if err != nil {
		return err
	}
	h := dnsmessage.ResourceHeader{
		Name:  name,
		Class: packClass(r.Class, r.CacheFlush),
		TTL:   r.TTL,
	}

	if r.Data == nil {
		return fmt.Errorf("%w: %s record without data", ErrInvalidRecord, r.Type)
	}
	if t := r.Data.recordType(); t != 0 && t != r.Type {
		return fmt.Errorf("%w: %s data in %s record", ErrInvalidRecord, t, r.Type)
	}

	switch d := r.Data.(type) {
	case PTR:
		target, err := newName(d.Target)
		if err != nil {
			return err
		}
		return b.PTRResource(h, dnsmessage.PTRResource{PTR: target})
	case SRV:
		target, err := newName(d.Target)
		if err != nil {
			return err
		}
		return b.SRVResource(h, dnsmessage.SRVResource{
			Priority: d.Priority,
			Weight:   d.Weight,
			Port:     d.Port,
			Target:   target,
		})
	case TXT:
		return b.TXTResource(h, dnsmessage.TXTResource{TXT: d.Strings})
	case A:
		if !d.Addr.Is4() {
			return fmt.Errorf("%w: %s is not an IPv4 address", ErrInvalidRecord, d.Addr)
		}
		return b.AResource(h, dnsmessage.AResource{A: d.Addr.As4()})
	case Unknown:
		switch r.Type {
		case TypeA, TypePTR, TypeSRV, TypeTXT:
			return fmt.Errorf("%w: opaque data in %s record", ErrInvalidRecord, r.Type)
		}
		return b.UnknownResource(h, dnsmessage.UnknownResource{
			Type: dnsmessage.Type(r.Type),
			Data: d.Raw,
		})
	}
	return fmt.Errorf("%w: unsupported data %T", ErrInvalidRecord, r.Data)
}

// Decode parses buf. Any structural problem is reported as a
// *MalformedPacketError. Records of types other than PTR, SRV, TXT and A are
// kept with Unknown data.
func Decode(buf []byte) (*Packet, error) {
	var p dnsmessage.Parser
	h, err := p.Start(buf)
	if err != nil {
		return nil, &MalformedPacketError{Section: SectionHeader, Err: err}
	}
	pkt := &Packet{ID: h.ID, Response: h.Response}

	questions, err := p.AllQuestions()
	if err != nil {
		return nil, &MalformedPacketError{Section: SectionQuestion, Index: len(questions), Err: err}
	}
	for _, q := range questions {
		pkt.Questions = append(pkt.Questions, Record{
			Name:       nameString(q.Name),
			Type:       Type(q.Type),
			Class:      Class(q.Class &^ cacheFlushBit),
			CacheFlush: q.Class&cacheFlushBit != 0,
		})
	}

	if pkt.Answers, err = parseSection(&p, SectionAnswer, p.AnswerHeader); err != nil {
		return nil, err
	}
	if pkt.Authorities, err = parseSection(&p, SectionAuthority, p.AuthorityHeader); err != nil {
		return nil, err
	}
	if pkt.Additionals, err = parseSection(&p, SectionAdditional, p.AdditionalHeader); err != nil {
		return nil, err
	}
	return pkt, nil
}

func parseSection(p *dnsmessage.Parser, section Section, next func() (dnsmessage.ResourceHeader, error)) ([]Record, error) {
	var records []Record
	for i := 0; ; i++ {
		h, err := next()
		if errors.Is(err, dnsmessage.ErrSectionDone) {
			return records, nil
		}
		if err != nil {
			return nil, &MalformedPacketError{Section: section, Index: i, Err: err}
		}
		data, err := parseData(p, h)
		if err != nil {
			return nil, &MalformedPacketError{Section: section, Index: i, Err: err}
		}
		records = append(records, Record{
			Name:       nameString(h.Name),
			Type:       Type(h.Type),
			Class:      Class(h.Class &^ cacheFlushBit),
			CacheFlush: h.Class&cacheFlushBit != 0,
			TTL:        h.TTL,
			Data:       data,
		})
	}
}

func parseData(p *dnsmessage.Parser, h dnsmessage.ResourceHeader) (RecordData, error) {
	switch Type(h.Type) {
	case TypePTR:
		r, err := p.PTRResource()
		if err != nil {
			return nil, err
		}
		return PTR{Target: nameString(r.PTR)}, nil
	case TypeSRV:
		r, err := p.SRVResource()
		if err != nil {
			return nil, err
		}
		return SRV{
			Priority: r.Priority,
			Weight:   r.Weight,
			Port:     r.Port,
			Target:   nameString(r.Target),
		}, nil
	case TypeTXT:
		r, err := p.TXTResource()
		if err != nil {
			return nil, err
		}
		return TXT{Strings: r.TXT}, nil
	case TypeA:
		// the parser reads four bytes regardless of RDLENGTH
		if h.Length != 4 {
			return nil, fmt.Errorf("A record data length %d", h.Length)
		}
		r, err := p.AResource()
		if err != nil {
			return nil, err
		}
		return A{Addr: netip.AddrFrom4(r.A)}, nil
	}
	r, err := p.UnknownResource()
	if err != nil {
		return nil, err
	}
	return Unknown{Raw: r.Data}, nil
}

func packClass(c Class, flush bool) dnsmessage.Class {
	if c == 0 {
		c = ClassINET
	}
	if flush {
		return dnsmessage.Class(c | cacheFlushBit)
	}
	return dnsmessage.Class(c)
}

// ValidateName reports whether name can be encoded: labels of 1 to 63 bytes
// without control characters and at most 255 bytes in total. The empty name
// and "." denote the root.
func ValidateName(name string) error {
	n := strings.TrimSuffix(name, ".")
	if n == "" {
		return nil
	}
	if len(n)+1 > 255 {
		return fmt.Errorf("%w: %q is longer than 255 bytes", ErrInvalidName, name)
	}
	for _, label := range strings.Split(n, ".") {
		if label == "" {
			return fmt.Errorf("%w: %q has an empty label", ErrInvalidName, name)
		}
		if len(label) > 63 {
			return fmt.Errorf("%w: label %q is longer than 63 bytes", ErrInvalidName, label)
		}
		for i := 0; i < len(label); i++ {
			if c := label[i]; c < 0x20 || c == 0x7f {
				return fmt.Errorf("%w: %q contains control character %#x", ErrInvalidName, name, c)
			}
		}
	}
	return nil
}

func newName(name string) (dnsmessage.Name, error) {
	if err := ValidateName(name); err != nil {
		return dnsmessage.Name{}, err
	}
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	n, err := dnsmessage.NewName(name)
	if err != nil {
		return dnsmessage.Name{}, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	return n, nil
}

func nameString(n dnsmessage.Name) string {
	return strings.TrimSuffix(n.String(), ".")
}
