package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// pinger drives the WebSocket-level liveness check from spec.md §4.2/§7
// ("WebSocket ping interval 120 s, pong timeout 10 s"), deliberately kept
// distinct from DefaultTimeout: a quiet-but-healthy appliance must not be
// disconnected just because nothing was sent or received in the last 30s.
//
// conn's read deadline is pushed out to PingInterval+PongTimeout on
// connect and again every time a pong arrives; the ticker goroutine is
// the only thing that ever sends a ping. If a pong doesn't arrive within
// PongTimeout of the most recent ping, the next Recv's ReadMessage call
// simply times out on its own, which the transport reports as
// ErrTransport and the Supervisor treats as connection loss.
type pinger struct {
	conn *websocket.Conn

	stop chan struct{}
	wg   sync.WaitGroup
}

// startPinger installs the pong handler and initial read deadline on an
// already-connected conn, then launches the ping ticker. Callers must
// call close before tearing down conn.
func startPinger(conn *websocket.Conn) *pinger {
	p := &pinger{conn: conn, stop: make(chan struct{})}

	conn.SetReadDeadline(time.Now().Add(PingInterval + PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(PingInterval + PongTimeout))
		return nil
	})

	p.wg.Add(1)
	go p.run()
	return p
}

func (p *pinger) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(PongTimeout)
			if err := p.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// close stops the ping ticker and waits for it to exit. It does not
// touch conn itself; the caller closes the connection separately.
func (p *pinger) close() {
	close(p.stop)
	p.wg.Wait()
}
