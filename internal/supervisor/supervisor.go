// Package supervisor owns the per-device reconnect loop, per spec.md §4.5
// ("Device Supervisor"). It dials a fresh Transport (and, for the HTTP
// variant, a fresh Framer) and a fresh Session on every attempt, publishes
// liveness, and forwards decoded events to the MQTT Bridge.
//
// Grounded on the teacher's SessionManager.household (manager.go): a
// lock-guarded loop that prunes dead sessions and tops the pool back up on
// a fixed interval. Generalized here from "maintain a pool of N sessions"
// to "maintain exactly one live session per device, with fixed pre-connect
// and post-failure delays". The pacing itself uses
// github.com/cenkalti/backoff/v4's ConstantBackOff rather than
// time.Sleep, per spec.md §4.5's "fixed (non-exponential) delays".
package supervisor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/hcpy-go/bridge/internal/catalog"
	"github.com/hcpy-go/bridge/internal/config"
	"github.com/hcpy-go/bridge/internal/framer"
	"github.com/hcpy-go/bridge/internal/session"
	"github.com/hcpy-go/bridge/internal/transport"
)

const (
	// preConnectDelay is how long the supervisor waits before every
	// connect attempt, including the first; after a failure it follows
	// postFailureDelay, per spec.md §4.5.
	preConnectDelay = 3 * time.Second
	// postFailureDelay is the longer cooldown after a failed connect or a
	// Run error, per spec.md §4.5.
	postFailureDelay = 57 * time.Second
)

// Sink receives events forwarded from every supervised device, device
// liveness transitions, and session registration. The MQTT Bridge
// implements this.
type Sink interface {
	HandleEvent(device string, ev session.Event)
	SetOnline(device string, online bool)
	// Register and Unregister maintain the explicit per-device session
	// registry the command path uses to reach a live Session (spec.md §9:
	// "Global per-device map").
	Register(device string, s *session.Session)
	Unregister(device string, s *session.Session)
}

// Supervisor owns one device's reconnect loop.
type Supervisor struct {
	device config.Device
	cat    *catalog.Catalog
	sink   Sink
	log    *logrus.Entry
}

// New constructs a Supervisor for one device entry.
func New(device config.Device, sink Sink, log *logrus.Entry) *Supervisor {
	return &Supervisor{
		device: device,
		cat:    device.Catalog(),
		sink:   sink,
		log:    log.WithField("device", device.Name),
	}
}

// Run loops connect/drive/disconnect until ctx is cancelled, per spec.md
// §4.5 ("while not cancelled: wait, connect, run the session to
// completion, repeat"). It never returns before ctx is done.
func (sv *Supervisor) Run(ctx context.Context) {
	defer sv.sink.SetOnline(sv.device.Name, false)

	for {
		delay := preConnectDelay
		b := backoff.NewConstantBackOff(delay)
		select {
		case <-time.After(b.NextBackOff()):
		case <-ctx.Done():
			return
		}

		failed, err := sv.connectAndRun(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			sv.log.WithError(err).Warn("session ended")
		}
		if failed {
			fb := backoff.NewConstantBackOff(postFailureDelay)
			select {
			case <-time.After(fb.NextBackOff()):
			case <-ctx.Done():
				return
			}
		}
	}
}

// connectAndRun performs exactly one connect attempt and, if successful,
// drives the session until it ends. The returned bool reports whether the
// attempt failed (connect error, or the run ended with a transport error)
// so Run can apply the longer cooldown.
func (sv *Supervisor) connectAndRun(ctx context.Context) (failed bool, err error) {
	t, f, buildErr := sv.buildTransport()
	if buildErr != nil {
		return true, buildErr
	}
	_ = f // retained so Connect's Framer reset (owned by HTTPTransport) runs on every attempt

	connectCtx, cancel := context.WithTimeout(ctx, transport.DefaultTimeout)
	defer cancel()

	if err := t.Connect(connectCtx); err != nil {
		return true, err
	}
	defer t.Close()

	sv.sink.SetOnline(sv.device.Name, true)
	defer sv.sink.SetOnline(sv.device.Name, false)

	sess := session.New(sv.device.Name, t, sv.cat, sv.log)
	sv.sink.Register(sv.device.Name, sess)
	defer sv.sink.Unregister(sv.device.Name, sess)

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for ev := range sess.Events() {
			sv.sink.HandleEvent(sv.device.Name, ev)
		}
	}()

	runErr := sess.Run(ctx)
	<-drainDone

	if runErr != nil && ctx.Err() == nil {
		return true, runErr
	}
	return false, runErr
}

// buildTransport constructs a fresh Transport (and, for the HTTP variant,
// a fresh Framer) for one connect attempt, per spec.md §4.5 ("a fresh
// Transport ... and for the HTTP variant a fresh Framer, on every
// attempt").
func (sv *Supervisor) buildTransport() (transport.Transport, *framer.Framer, error) {
	if !sv.device.IsHTTPVariant() {
		psk, err := sv.device.DecodeKey()
		if err != nil {
			return nil, nil, err
		}
		return transport.NewTLSPSKTransport(sv.device.Host, psk), nil, nil
	}

	key, err := sv.device.DecodeKey()
	if err != nil {
		return nil, nil, err
	}
	iv, err := sv.device.DecodeIV()
	if err != nil {
		return nil, nil, err
	}
	f, err := framer.New(key, iv)
	if err != nil {
		return nil, nil, err
	}
	return transport.NewHTTPTransport(sv.device.Host, f, sv.log), f, nil
}
