package dnswire

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPacket matches every *MalformedPacketError.
	ErrMalformedPacket = errors.New("dnswire: malformed packet")

	// ErrInvalidName is returned when a name cannot be encoded.
	ErrInvalidName = errors.New("dnswire: invalid name")

	// ErrInvalidRecord is returned when a record's data does not fit its type.
	ErrInvalidRecord = errors.New("dnswire: invalid record")

	// ErrWrongType matches every *InterpretError.
	ErrWrongType = errors.New("dnswire: wrong record type")
)

// Section names a part of a DNS message.
type Section string

const (
	SectionHeader     Section = "header"
	SectionQuestion   Section = "question"
	SectionAnswer     Section = "answer"
	SectionAuthority  Section = "authority"
	SectionAdditional Section = "additional"
)

// MalformedPacketError reports where decoding a packet failed.
type MalformedPacketError struct {
	Section Section
	Index   int
	Err     error
}

func (e *MalformedPacketError) Error() string {
	if e.Section == SectionHeader {
		return fmt.Sprintf("dnswire: malformed packet: header: %v", e.Err)
	}
	return fmt.Sprintf("dnswire: malformed packet: %s %d: %v", e.Section, e.Index, e.Err)
}

func (e *MalformedPacketError) Unwrap() error { return e.Err }

func (e *MalformedPacketError) Is(target error) bool { return target == ErrMalformedPacket }

// InterpretError is returned by the As* projections when a record is not of
// the requested type.
type InterpretError struct {
	Want Type
	Got  Type
}

func (e *InterpretError) Error() string {
	return fmt.Sprintf("dnswire: cannot read %s record as %s", e.Got, e.Want)
}

func (e *InterpretError) Is(target error) bool { return target == ErrWrongType }
