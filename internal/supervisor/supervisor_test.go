package supervisor

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/hcpy-go/bridge/internal/config"
	"github.com/hcpy-go/bridge/internal/session"
	"github.com/hcpy-go/bridge/internal/transport"
)

type recordingSink struct {
	events  []session.Event
	online  map[string]bool
}

func (r *recordingSink) HandleEvent(device string, ev session.Event) {
	r.events = append(r.events, ev)
}

func (r *recordingSink) SetOnline(device string, online bool) {
	if r.online == nil {
		r.online = make(map[string]bool)
	}
	r.online[device] = online
}

func (r *recordingSink) Register(device string, s *session.Session)   {}
func (r *recordingSink) Unregister(device string, s *session.Session) {}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// TestBuildTransportSelectsTLSPSK verifies a device with no iv uses the
// TLS-PSK transport, per spec.md §4.2's "selected by presence of iv".
func TestBuildTransportSelectsTLSPSK(t *testing.T) {
	dev := config.Device{
		Name: "oven",
		Host: "192.0.2.10",
		Key:  "AAAAAAAAAAAAAAAAAAAAAA",
	}
	sv := New(dev, &recordingSink{}, testLogger())

	tr, f, err := sv.buildTransport()
	if err != nil {
		t.Fatalf("buildTransport: %v", err)
	}
	if f != nil {
		t.Fatal("expected no framer for TLS-PSK variant")
	}
	if _, ok := tr.(*transport.TLSPSKTransport); !ok {
		t.Fatalf("expected *transport.TLSPSKTransport, got %T", tr)
	}
}

// TestBuildTransportSelectsHTTP verifies a device with an iv uses the
// plain-WebSocket, application-layer-encrypted transport.
func TestBuildTransportSelectsHTTP(t *testing.T) {
	dev := config.Device{
		Name: "dishwasher",
		Host: "192.0.2.11",
		Key:  "AAAAAAAAAAAAAAAAAAAAAA",
		IV:   "AAAAAAAAAAAAAAAAAAAAAA",
	}
	sv := New(dev, &recordingSink{}, testLogger())

	tr, f, err := sv.buildTransport()
	if err != nil {
		t.Fatalf("buildTransport: %v", err)
	}
	if f == nil {
		t.Fatal("expected a framer for the HTTP variant")
	}
	if _, ok := tr.(*transport.HTTPTransport); !ok {
		t.Fatalf("expected *transport.HTTPTransport, got %T", tr)
	}
}
