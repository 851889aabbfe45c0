package utils

import (
	"net"
	"net/netip"
	"strings"
)

// cgnatPrefix is the shared address space used by carrier NAT, Cloudflare
// WARP and Tailscale.
var cgnatPrefix = netip.MustParsePrefix("100.64.0.0/10")

var tunnelNameHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// NetInterface is the subset of an interface the relay heuristic looks at.
type NetInterface struct {
	Name  string
	Up    bool
	Addrs []netip.Addr
}

// ShouldForceRelay reports whether this host looks like it sits behind a VPN
// or CGNAT, where direct candidates rarely connect and TURN is needed.
func ShouldForceRelay() bool {
	ifaces, err := localInterfaces()
	if err != nil {
		return false
	}
	return LooksRelayOnly(ifaces)
}

// LooksRelayOnly applies the tunnel-name and CGNAT-address heuristic.
func LooksRelayOnly(ifaces []NetInterface) bool {
	for _, iface := range ifaces {
		if !iface.Up {
			continue
		}
		name := strings.ToLower(iface.Name)
		for _, hint := range tunnelNameHints {
			if strings.Contains(name, hint) {
				return true
			}
		}
		for _, addr := range iface.Addrs {
			if cgnatPrefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

func localInterfaces() ([]NetInterface, error) {
	raw, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]NetInterface, 0, len(raw))
	for _, iface := range raw {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ni := NetInterface{Name: iface.Name, Up: iface.Flags&net.FlagUp != 0}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, a := range addrs {
				var ip net.IP
				switch v := a.(type) {
				case *net.IPNet:
					ip = v.IP
				case *net.IPAddr:
					ip = v.IP
				}
				if addr, ok := netip.AddrFromSlice(ip); ok {
					ni.Addrs = append(ni.Addrs, addr)
				}
			}
		}
		out = append(out, ni)
	}
	return out, nil
}
