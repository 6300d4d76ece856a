package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/hcpy-go/bridge/internal/wire"
)

// Get sends an outbound request, per spec.md §4.4 ("Outbound
// get(resource, version?, action, data?)"). data may be nil, a
// map[string]interface{}, or a []map[string]interface{}; it is normalized
// to an array before being placed on the wire.
//
// For action=POST on /ro/values, the payload is run through
// Catalog.ValidateWrite; on /ro/activeProgram or /ro/selectedProgram,
// through Catalog.ValidateProgram. Validation failures are returned to the
// caller and nothing is sent; txMsgID is not consumed. Any other error
// (a transmission failure) still consumes the message id, mirroring the
// teacher's unconditional counter bump after a best-effort send
// (certusone-yubihsm-go/securechannel/channel.go: s.Counter++ always runs
// once a command has been dispatched).
func (s *Session) Get(ctx context.Context, resource string, version *int, action wire.Action, data interface{}) error {
	return s.get(ctx, resource, version, action, data)
}

func (s *Session) get(ctx context.Context, resource string, version *int, action wire.Action, data interface{}) error {
	resolvedVersion := s.resolveVersion(resource, version)

	items := wire.AsData(data)

	if action == wire.ActionPost {
		validated, err := s.validateOutbound(resource, items)
		if err != nil {
			return fmt.Errorf("validating %s: %w", resource, err)
		}
		items = validated
	}

	s.mu.Lock()
	msgID := s.txMsgID
	sID := s.sessionID
	s.mu.Unlock()

	msg := &wire.Message{
		SessionID: sID,
		MsgID:     &msgID,
		Resource:  resource,
		Version:   resolvedVersion,
		Action:    action,
	}
	if items != nil {
		msg.Data = items
	}

	sendErr := s.send(ctx, msg)
	if sendErr != nil {
		s.log.WithError(sendErr).WithField("resource", resource).Warn("failed to send")
	}

	s.mu.Lock()
	s.txMsgID++
	s.mu.Unlock()

	return sendErr
}

// resolveVersion defaults to the version the service advertised in
// /ci/services, else 1, per spec.md §4.4.
func (s *Session) resolveVersion(resource string, version *int) int {
	if version != nil {
		return *version
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.services) == 0 {
		return 1
	}

	parts := strings.SplitN(strings.TrimPrefix(resource, "/"), "/", 2)
	if len(parts) == 0 {
		return 1
	}
	if svc, ok := s.services[parts[0]]; ok {
		return svc.Version
	}
	return 1
}

// validateOutbound applies the write/program validation policy of
// spec.md §4.3, returning the normalized data array to send.
func (s *Session) validateOutbound(resource string, items []map[string]interface{}) ([]map[string]interface{}, error) {
	switch resource {
	case "/ro/values":
		out := make([]map[string]interface{}, 0, len(items))
		for _, item := range items {
			normalized, err := s.cat.ValidateWrite(item)
			if err != nil {
				return nil, err
			}
			out = append(out, normalized)
		}
		return out, nil
	case "/ro/activeProgram", "/ro/selectedProgram":
		for _, item := range items {
			if err := s.cat.ValidateProgram(item); err != nil {
				return nil, err
			}
		}
		return items, nil
	default:
		return items, nil
	}
}
