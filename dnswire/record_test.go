package dnswire

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpreters(t *testing.T) {
	ptr := Record{Name: "_test._tcp.local", Type: TypePTR, TTL: 120, Data: PTR{Target: "foo._test._tcp.local"}}
	srv := Record{Name: "foo._test._tcp.local", Type: TypeSRV, TTL: 120, Data: SRV{Port: 8080, Target: "foo.local"}}
	txt := Record{Name: "foo._test._tcp.local", Type: TypeTXT, TTL: 120, Data: TXT{Strings: []string{"a=1", "b"}}}
	a := Record{Name: "foo.local", Type: TypeA, TTL: 120, Data: A{Addr: netip.MustParseAddr("10.0.0.5")}}

	t.Run("matching type", func(t *testing.T) {
		target, err := AsPTRTarget(ptr)
		require.NoError(t, err)
		assert.Equal(t, "foo._test._tcp.local", target)

		s, err := AsSRV(srv)
		require.NoError(t, err)
		assert.Equal(t, uint16(8080), s.Port)
		assert.Equal(t, "foo.local", s.Target)

		list, err := AsTXTList(txt)
		require.NoError(t, err)
		assert.Equal(t, []string{"a=1", "b"}, list)

		addr, err := AsAddress(a)
		require.NoError(t, err)
		assert.Equal(t, netip.MustParseAddr("10.0.0.5"), addr)
	})

	t.Run("mismatched type", func(t *testing.T) {
		_, err := AsPTRTarget(srv)
		assert.ErrorIs(t, err, ErrWrongType)

		_, err = AsSRV(txt)
		assert.ErrorIs(t, err, ErrWrongType)

		_, err = AsTXTList(a)
		assert.ErrorIs(t, err, ErrWrongType)

		_, err = AsAddress(ptr)
		var ierr *InterpretError
		require.ErrorAs(t, err, &ierr)
		assert.Equal(t, TypeA, ierr.Want)
		assert.Equal(t, TypePTR, ierr.Got)
	})

	t.Run("type code without matching data", func(t *testing.T) {
		_, err := AsSRV(Record{Type: TypeSRV, Data: Unknown{Raw: []byte{1}}})
		assert.ErrorIs(t, err, ErrWrongType)

		_, err = AsAddress(Record{Type: TypeA, Data: A{Addr: netip.MustParseAddr("fe80::1")}})
		assert.ErrorIs(t, err, ErrWrongType)

		_, err = AsTXTList(Record{Type: TypeTXT})
		assert.ErrorIs(t, err, ErrWrongType)
	})
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "PTR", TypePTR.String())
	assert.Equal(t, "SRV", TypeSRV.String())
	assert.Equal(t, "TYPE28", Type(28).String())
}

func TestRecordString(t *testing.T) {
	r := Record{Name: "foo.local", Type: TypeA, TTL: 120, Data: A{Addr: netip.MustParseAddr("10.0.0.5")}}
	assert.Equal(t, "foo.local 120 A 10.0.0.5", r.String())

	q := Record{Name: "_test._tcp.local", Type: TypePTR}
	assert.Equal(t, "_test._tcp.local PTR ?", q.String())
}
