package session

import (
	"context"
	"strconv"

	"github.com/hcpy-go/bridge/internal/catalog"
	"github.com/hcpy-go/bridge/internal/wire"
)

// handleResponseOrNotify dispatches an inbound RESPONSE or NOTIFY by
// resource, per the "Running" bullet list of spec.md §4.4.
func (s *Session) handleResponseOrNotify(ctx context.Context, msg *wire.Message) error {
	switch msg.Resource {
	case "/ci/services":
		return s.handleServices(ctx, msg)

	case "/ro/values", "/ro/allMandatoryValues":
		decoded := s.cat.DecodeValues(msg.Data)
		if len(decoded) > 0 {
			s.emit(Event{Type: EventState, Resource: msg.Resource, Data: decoded})
		}
		return nil

	case "/ro/descriptionChange", "/ro/allDescriptionChanges":
		s.applyDescriptionChanges(msg.Data)
		decoded := s.cat.DecodeValues(msg.Data)
		if len(decoded) > 0 {
			s.emit(Event{Type: EventState, Resource: msg.Resource, Data: decoded})
		}
		return nil

	case "/iz/info", "/ci/info", "/ni/info":
		if item := msg.Item(); item != nil {
			s.emit(Event{Type: EventInfo, Resource: msg.Resource, Data: item})
		}
		return nil

	case "/ci/authentication":
		// Informational only; the appliance's authentication response
		// carries no state the bridge needs to act on.
		return nil

	case "/ci/registeredDevices", "/ci/tzInfo", "/ni/config":
		return nil

	default:
		s.log.WithField("resource", msg.Resource).Info("unhandled resource")
		return nil
	}
}

// handleServices populates the services map from /ci/services' data array
// (each item is {"service": name, "version": n}), then unblocks
// runHandshake's wait (servicesReady is closed exactly once) and fires the
// FSM's services_ready event, which only transitions out of the handshake
// state and is a no-op otherwise, per spec.md §4.4.
func (s *Session) handleServices(ctx context.Context, msg *wire.Message) error {
	s.mu.Lock()
	for _, item := range msg.Data {
		name, ok := item["service"].(string)
		if !ok || name == "" {
			continue
		}
		version := 1
		if v, ok := parseIntLoose(item["version"]); ok {
			version = v
		}
		s.services[name] = serviceInfo{Version: version}
	}
	s.mu.Unlock()

	s.readyOnce.Do(func() {
		close(s.servicesReady)
	})

	_ = s.machine.Event(ctx, "services_ready")

	return nil
}

// applyDescriptionChanges merges every item of a descriptionChange payload
// into the catalog (spec.md §4.3).
func (s *Session) applyDescriptionChanges(items []map[string]interface{}) {
	for _, item := range items {
		rawUID, ok := item["uid"]
		if !ok {
			continue
		}
		n, ok := parseIntLoose(rawUID)
		if !ok {
			continue
		}

		change := catalog.DescriptionChange{UID: strconv.Itoa(n)}

		if access, ok := item["access"].(string); ok {
			change.Access = &access
		}
		if available, ok := item["available"].(bool); ok {
			change.Available = &available
		}
		if min, ok := parseIntLoose(item["min"]); ok {
			change.Min = &min
		}
		if max, ok := parseIntLoose(item["max"]); ok {
			change.Max = &max
		}
		if def, ok := item["default"]; ok {
			ds := stringifyDefault(def)
			change.Default = &ds
		}

		s.cat.ApplyDescriptionChange(change)
	}
}

// stringifyDefault renders a description-change "default" field (which may
// arrive as a JSON number, bool, or string) as the string form the catalog
// stores for InitValue.
func stringifyDefault(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
