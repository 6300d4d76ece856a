// Package transport opens the local-network connection to a Home Connect
// appliance, either TLS-PSK on port 443 or plain WebSocket with
// application-layer framing on port 80, and exposes a uniform duplex
// frame interface to the session layer. See spec.md §4.2.
//
// Grounded on the teacher's connector.Connector interface
// (certusone-yubihsm-go/connector/connector.go), generalized from a
// request/response HTTP call to a persistent duplex connection, since BSH
// is bidirectional and asynchronous rather than request/response.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrTransport wraps any socket/TLS/WebSocket failure, per the taxonomy of
// spec.md §7. Callers (the Supervisor) treat it as a reconnect trigger.
var ErrTransport = errors.New("transport error")

// PingInterval, PongTimeout and DefaultTimeout are the three distinct
// clocks spec.md §4.2/§7 names: PingInterval/PongTimeout drive the
// WebSocket-level liveness ping (see liveness.go's pinger, which pushes
// out the read deadline on connect and on every pong so a quiet-but-alive
// appliance survives), while DefaultTimeout bounds the connect/handshake
// dial and every individual write. A connection that goes past
// PingInterval+PongTimeout without a pong simply times out on its next
// Recv, which both transports report as ErrTransport.
const (
	PingInterval   = 120 * time.Second
	PongTimeout    = 10 * time.Second
	DefaultTimeout = 30 * time.Second
)

// Transport is the duplex byte-frame connection to an appliance. Send and
// Recv operate on whole plaintext JSON frames for both variants: the
// TLS-PSK variant sends and receives them as text frames, while the HTTP
// variant passes them through its Framer itself and carries the
// ciphertext+tag as binary frames.
type Transport interface {
	// Connect dials the appliance and performs the WebSocket upgrade.
	Connect(ctx context.Context) error
	// Send writes one frame.
	Send(ctx context.Context, frame []byte) error
	// Recv blocks for the next inbound frame.
	Recv(ctx context.Context) ([]byte, error)
	// Close tears down the connection.
	Close() error
}

// Variant selects which of the two wire transports a device uses, per
// spec.md §4.2 ("Two variants, selected by presence of iv in the device
// record").
type Variant int

const (
	VariantTLSPSK Variant = iota
	VariantHTTP
)
