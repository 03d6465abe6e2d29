package util

import (
	"net"
	"net/netip"
)

// GetOutboundIP returns the local address the host would use to reach the
// mDNS group. No packet is sent.
func GetOutboundIP() (netip.Addr, error) {
	conn, err := net.Dial("udp4", "224.0.0.251:5353")
	if err != nil {
		return netip.Addr{}, err
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().Unmap(), nil
}
