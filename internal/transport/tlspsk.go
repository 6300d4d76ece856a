package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	tlspsk "github.com/raff/tls-psk"
)

// pskIdentityHint is the PSK identity the bridge presents; the appliance
// also accepts a null identity (spec.md §4.2).
const pskIdentityHint = "HCCOM_Local_App"

// TLSPSKTransport implements the TLS 1.2, PSK-authenticated variant on
// port 443. Hostname and certificate-chain verification are disabled: the
// PSK authenticates both sides in lieu of certificates (spec.md §4.2).
type TLSPSKTransport struct {
	host string
	psk  []byte

	conn *websocket.Conn
	ping *pinger
}

// NewTLSPSKTransport constructs a transport for host using psk (already
// base64url-decoded).
func NewTLSPSKTransport(host string, psk []byte) *TLSPSKTransport {
	return &TLSPSKTransport{host: host, psk: psk}
}

func (t *TLSPSKTransport) Connect(ctx context.Context) error {
	cfg := &tlspsk.Config{
		GetIdentity: func() string { return pskIdentityHint },
		GetKey: func(identity string) ([]byte, error) {
			return t.psk, nil
		},
		CipherSuites: []uint16{
			tlspsk.TLS_ECDHE_PSK_WITH_CHACHA20_POLY1305_SHA256,
			tlspsk.TLS_PSK_WITH_AES_128_CBC_SHA256,
		},
		MinVersion: tlspsk.VersionTLS12,
		MaxVersion: tlspsk.VersionTLS12,
	}

	dialer := &websocket.Dialer{
		NetDialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			raw, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTransport, err)
			}
			return tlspsk.Client(raw, cfg), nil
		},
		HandshakeTimeout: DefaultTimeout,
	}

	uri := fmt.Sprintf("wss://%s:443/homeconnect", t.host)
	header := http.Header{"Origin": []string{""}}

	conn, _, err := dialer.DialContext(ctx, uri, header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	t.conn = conn
	t.ping = startPinger(conn)
	return nil
}

func (t *TLSPSKTransport) Send(ctx context.Context, frame []byte) error {
	t.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (t *TLSPSKTransport) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return data, nil
}

func (t *TLSPSKTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	if t.ping != nil {
		t.ping.close()
	}
	return t.conn.Close()
}
