package dnswire

import (
	"fmt"
	"net/netip"
	"strings"
)

// RecordData is the decoded payload of a resource record. It is implemented
// only by PTR, SRV, TXT, A and Unknown.
type RecordData interface {
	recordType() Type
}

// PTR points at a service instance name.
type PTR struct {
	Target string
}

// SRV locates a service instance.
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// TXT holds the character-strings of a TXT record in wire order.
type TXT struct {
	Strings []string
}

// A holds an IPv4 address.
type A struct {
	Addr netip.Addr
}

// Unknown holds the raw data of a record type this package does not
// interpret.
type Unknown struct {
	Raw []byte
}

func (PTR) recordType() Type     { return TypePTR }
func (SRV) recordType() Type     { return TypeSRV }
func (TXT) recordType() Type     { return TypeTXT }
func (A) recordType() Type       { return TypeA }
func (Unknown) recordType() Type { return 0 }

func (d PTR) String() string { return d.Target }

func (d SRV) String() string {
	return fmt.Sprintf("%d %d %d %s", d.Priority, d.Weight, d.Port, d.Target)
}

func (d TXT) String() string { return strings.Join(d.Strings, " ") }

func (d A) String() string { return d.Addr.String() }

func (d Unknown) String() string { return fmt.Sprintf("\\# %d %x", len(d.Raw), d.Raw) }

// AsPTRTarget returns the instance name a PTR record points at.
func AsPTRTarget(r Record) (string, error) {
	d, err := project[PTR](r, TypePTR)
	return d.Target, err
}

// AsSRV returns the service location carried by an SRV record.
func AsSRV(r Record) (SRV, error) {
	return project[SRV](r, TypeSRV)
}

// AsTXTList returns the character-strings of a TXT record.
func AsTXTList(r Record) ([]string, error) {
	d, err := project[TXT](r, TypeTXT)
	return d.Strings, err
}

// AsAddress returns the IPv4 address of an A record.
func AsAddress(r Record) (netip.Addr, error) {
	d, err := project[A](r, TypeA)
	if err != nil {
		return netip.Addr{}, err
	}
	if !d.Addr.Is4() {
		return netip.Addr{}, &InterpretError{Want: TypeA, Got: r.Type}
	}
	return d.Addr, nil
}

func project[T RecordData](r Record, want Type) (T, error) {
	var zero T
	if r.Type != want {
		return zero, &InterpretError{Want: want, Got: r.Type}
	}
	d, ok := r.Data.(T)
	if !ok {
		return zero, &InterpretError{Want: want, Got: r.Type}
	}
	return d, nil
}
