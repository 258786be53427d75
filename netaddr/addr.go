// Package netaddr provides the tagged IPv4/IPv6 address type the socket
// layer uses for bind/connect/accept/recvfrom/sendto.
package netaddr

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Family tags which variant an Addr holds.
type Family uint8

const (
	IPv4 Family = iota
	IPv6
)

// Addr is a parsed numeric IP plus a 16-bit port, stored in host byte
// order; ToSockaddr renders it for the unix syscalls.
type Addr struct {
	Family Family
	IP     net.IP
	Port   int
}

// Parse parses "host:port" (numeric host, either family) into an Addr.
func Parse(hostport string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Addr{}, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Addr{}, fmt.Errorf("netaddr: invalid port %q: %w", portStr, err)
	}
	if port < 0 || port > 65535 {
		return Addr{}, fmt.Errorf("netaddr: port %d out of range", port)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Addr{}, fmt.Errorf("netaddr: invalid numeric address %q", host)
	}
	if ip4 := ip.To4(); ip4 != nil {
		return Addr{Family: IPv4, IP: ip4, Port: port}, nil
	}
	return Addr{Family: IPv6, IP: ip, Port: port}, nil
}

// ToSockaddr renders the Addr as a unix.Sockaddr suitable for Bind/Connect.
func (a Addr) ToSockaddr() (unix.Sockaddr, error) {
	switch a.Family {
	case IPv4:
		var sa unix.SockaddrInet4
		if a.IP != nil {
			copy(sa.Addr[:], a.IP.To4())
		}
		sa.Port = a.Port
		return &sa, nil
	case IPv6:
		var sa unix.SockaddrInet6
		if a.IP != nil {
			copy(sa.Addr[:], a.IP.To16())
		}
		sa.Port = a.Port
		return &sa, nil
	default:
		return nil, fmt.Errorf("netaddr: unknown family %d", a.Family)
	}
}

// FromSockaddr converts a unix.Sockaddr (as returned by Accept/Recvfrom)
// back into an Addr.
func FromSockaddr(sa unix.Sockaddr) (Addr, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		return Addr{Family: IPv4, IP: ip, Port: v.Port}, nil
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return Addr{Family: IPv6, IP: ip, Port: v.Port}, nil
	default:
		return Addr{}, fmt.Errorf("netaddr: unsupported sockaddr type %T", sa)
	}
}

func (a Addr) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprintf("%d", a.Port))
}
