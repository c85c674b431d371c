package quicengine

import (
	"log/slog"
	"net"
)

// Socket buffer sizing for the listener. quic-go warns when the kernel
// caps the buffers below what it asked for, so request a generous size
// up front and log what we actually got.
const (
	minUDPBuffer = 256 << 10
	udpBufferReq = 8 << 20
)

func tuneUDPBuffers(conn *net.UDPConn, log *slog.Logger) {
	if conn == nil {
		return
	}
	req := udpBufferReq
	if req < minUDPBuffer {
		req = minUDPBuffer
	}
	if err := conn.SetReadBuffer(req); err != nil {
		log.Debug("udp read buffer", "requested", req, "err", err)
	}
	if err := conn.SetWriteBuffer(req); err != nil {
		log.Debug("udp write buffer", "requested", req, "err", err)
	}
}
