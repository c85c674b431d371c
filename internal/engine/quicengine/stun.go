package quicengine

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/pion/stun"
)

// defaultStunServers are queried when the caller configures none.
var defaultStunServers = []string{
	"stun.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

// resolveReflexiveAddrs asks STUN servers for the conn's public mapping.
// It must run before QUIC starts reading the conn; afterwards the
// responses would be swallowed by the QUIC demuxer. Failure is not
// fatal: the locator then carries local addresses only.
func resolveReflexiveAddrs(conn *net.UDPConn, servers []string, log *slog.Logger) []string {
	if len(servers) == 0 {
		servers = defaultStunServers
	}

	var addrs []string
	seen := make(map[string]struct{})
	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)

	for _, server := range servers {
		serverAddr, err := net.ResolveUDPAddr("udp4", strings.TrimPrefix(server, "stun:"))
		if err != nil {
			log.Warn("invalid STUN server", "server", server, "err", err)
			continue
		}
		if _, err := conn.WriteToUDP(msg.Raw, serverAddr); err != nil {
			continue
		}

		buf := make([]byte, 1024)
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		conn.SetReadDeadline(time.Time{})
		if err != nil {
			continue
		}

		res := &stun.Message{Raw: buf[:n]}
		if err := res.Decode(); err != nil {
			continue
		}

		var mapped *net.UDPAddr
		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(res); err != nil {
			var mappedAddr stun.MappedAddress
			if err := mappedAddr.GetFrom(res); err != nil {
				continue
			}
			mapped = &net.UDPAddr{IP: mappedAddr.IP, Port: mappedAddr.Port}
		} else {
			mapped = &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}
		}

		key := mapped.String()
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			addrs = append(addrs, key)
			log.Debug("public address resolved", "addr", key)
		}
	}
	return addrs
}

// localAddrs lists dialable local addresses for the given port.
func localAddrs(port int) []string {
	var out []string
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, addr := range ifaces {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP
		if ip.To4() == nil || ip.IsLinkLocalUnicast() {
			continue
		}
		out = append(out, fmt.Sprintf("%s:%d", ip, port))
	}
	return out
}
