package mdnssd

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstanceMerge(t *testing.T) {
	base := Instance{
		ID:      "foo._test._tcp.local",
		Name:    "foo",
		Type:    testType,
		Host:    "foo.local",
		Port:    8080,
		Address: netip.MustParseAddr("10.0.0.5"),
		TXT:     []string{"a=1"},
		TTL:     120,
	}

	tests := []struct {
		name    string
		update  Instance
		want    Instance
		changed bool
	}{
		{
			name:   "empty update",
			update: Instance{},
			want:   base,
		},
		{
			name:   "same values",
			update: Instance{Host: "foo.local", Port: 8080, TXT: []string{"a=1"}},
			want:   base,
		},
		{
			name:    "new port keeps host",
			update:  Instance{Port: 9090},
			want:    func() Instance { i := base; i.Port = 9090; return i }(),
			changed: true,
		},
		{
			name:    "srv carries priority",
			update:  Instance{Host: "foo.local", Priority: 10, Weight: 5},
			want:    func() Instance { i := base; i.Priority, i.Weight = 10, 5; return i }(),
			changed: true,
		},
		{
			name:   "priority alone is ignored",
			update: Instance{Priority: 10},
			want:   base,
		},
		{
			name:    "txt replaced",
			update:  Instance{TXT: []string{"b=2", "c"}},
			want:    func() Instance { i := base; i.TXT = []string{"b=2", "c"}; return i }(),
			changed: true,
		},
		{
			name:    "address replaced",
			update:  Instance{Address: netip.MustParseAddr("10.0.0.6")},
			want:    func() Instance { i := base; i.Address = netip.MustParseAddr("10.0.0.6"); return i }(),
			changed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := base.clone()
			assert.Equal(t, tt.changed, inst.merge(tt.update))
			assert.Equal(t, tt.want, inst)
		})
	}
}

func TestInstanceMergeCommutes(t *testing.T) {
	srv := Instance{Host: "foo.local", Port: 8080}
	txt := Instance{TXT: []string{"a=1"}}
	addr := Instance{Address: netip.MustParseAddr("10.0.0.5")}

	var a, b Instance
	for _, u := range []Instance{srv, txt, addr} {
		a.merge(u)
	}
	for _, u := range []Instance{addr, txt, srv} {
		b.merge(u)
	}
	assert.Equal(t, a, b)
}

func TestInstanceCloneCopiesTXT(t *testing.T) {
	inst := Instance{TXT: []string{"a=1"}}
	c := inst.clone()
	c.TXT[0] = "b=2"
	assert.Equal(t, "a=1", inst.TXT[0])
}
