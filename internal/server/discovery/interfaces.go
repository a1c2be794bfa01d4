package discovery

import (
	"net"
	"strings"
)

// Interface is the subset of a network interface used for target selection.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// InterfaceSource lists the host's interfaces.
type InterfaceSource func() ([]Interface, error)

// SystemInterfaces reads interfaces from the operating system.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		out = append(out, Interface{Name: ifi.Name, Flags: ifi.Flags, Addrs: addrs})
	}
	return out, nil
}

// Container and VM bridges never lead to other clipboard hosts.
var virtualPrefixes = []string{"docker", "br-", "veth", "virbr", "cni", "flannel"}

func isVirtual(name string) bool {
	for _, p := range virtualPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Target is one broadcast destination.
type Target struct {
	Interface string
	Local     net.IP
	Broadcast net.IP
}

// BroadcastTargets returns the directed broadcast address of every up,
// broadcast-capable, non-loopback IPv4 interface. Link-local subnets are
// used only when no routable subnet exists.
func BroadcastTargets(ifaces []Interface) []Target {
	var routable, linkLocal []Target
	seen := make(map[string]bool)

	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagBroadcast == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isVirtual(ifi.Name) {
			continue
		}
		for _, addr := range ifi.Addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			bcast := directedBroadcast(ip4, ipnet.Mask)
			if bcast == nil || seen[bcast.String()] {
				continue
			}
			seen[bcast.String()] = true

			t := Target{Interface: ifi.Name, Local: ip4, Broadcast: bcast}
			if ip4.IsLinkLocalUnicast() {
				linkLocal = append(linkLocal, t)
			} else {
				routable = append(routable, t)
			}
		}
	}

	if len(routable) > 0 {
		return routable
	}
	return linkLocal
}

// directedBroadcast returns ip | ^mask, or nil for /31 and /32 subnets,
// which have no broadcast address.
func directedBroadcast(ip net.IP, mask net.IPMask) net.IP {
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}
	if ones, _ := mask.Size(); ones >= 31 {
		return nil
	}
	out := make(net.IP, net.IPv4len)
	for i := range out {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}
