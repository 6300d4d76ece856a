package session

import (
	"context"
	"time"

	"github.com/hcpy-go/bridge/internal/wire"
)

// runHandshake issues the canonical GET/POST/NOTIFY sequence of spec.md
// §4.4 ("ServicesHandshake → Running"). Issue order matters: deviceReady
// must precede /ni/info, and allMandatoryValues must precede
// allDescriptionChanges so later merges win.
func (s *Session) runHandshake(ctx context.Context) error {
	one := 1
	if err := s.get(ctx, "/ci/services", &one, wire.ActionGet, nil); err != nil {
		return err
	}

	select {
	case <-s.servicesReady:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		s.log.Warn("timed out waiting for /ci/services")
		return nil
	}

	s.mu.Lock()
	ci, hasCI := s.services["ci"]
	_, hasIZ := s.services["iz"]
	_, hasEI := s.services["ei"]
	_, hasCE := s.services["ce"]
	_, hasNI := s.services["ni"]
	_, hasRO := s.services["ro"]
	s.mu.Unlock()

	if hasCI && ci.Version == 2 {
		nonce, err := randomNonce()
		if err != nil {
			return err
		}
		if err := s.get(ctx, "/ci/authentication", nil, wire.ActionPost, map[string]interface{}{"nonce": nonce}); err != nil {
			s.log.WithError(err).Warn("/ci/authentication failed")
		}
		if err := s.get(ctx, "/ci/info", nil, wire.ActionGet, nil); err != nil {
			s.log.WithError(err).Warn("/ci/info failed")
		}
	}

	if hasIZ {
		if err := s.get(ctx, "/iz/info", nil, wire.ActionGet, nil); err != nil {
			s.log.WithError(err).Warn("/iz/info failed")
		}
	}

	if hasEI {
		if err := s.get(ctx, "/ei/deviceReady", nil, wire.ActionNotify, nil); err != nil {
			s.log.WithError(err).Warn("/ei/deviceReady failed")
		}
	}

	if hasCE {
		if err := s.get(ctx, "/ce/status", nil, wire.ActionGet, nil); err != nil {
			s.log.WithError(err).Warn("/ce/status failed")
		}
	}

	if hasNI {
		if err := s.get(ctx, "/ni/info", nil, wire.ActionGet, nil); err != nil {
			s.log.WithError(err).Warn("/ni/info failed")
		}
	}

	if hasRO {
		if err := s.get(ctx, "/ro/allMandatoryValues", nil, wire.ActionGet, nil); err != nil {
			s.log.WithError(err).Warn("/ro/allMandatoryValues failed")
		}
		if err := s.get(ctx, "/ro/allDescriptionChanges", nil, wire.ActionGet, nil); err != nil {
			s.log.WithError(err).Warn("/ro/allDescriptionChanges failed")
		}
	}

	return nil
}
