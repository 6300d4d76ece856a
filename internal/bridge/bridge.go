// Package bridge implements the core-facing half of the MQTT Bridge,
// per spec.md §4.6: publishing decoded Session events to per-feature state
// and event topics, and delivering inbound command-topic messages to the
// right device's Session. Building and connecting the paho.mqtt.golang
// client itself (TLS config, credentials, LWT registration) is out of
// scope (spec.md §1: "the MQTT client library wiring"); this package is
// handed an already-constructed mqtt.Client.
//
// Grounded on other_examples/manifests/gravypower-dd/go.mod (paho.mqtt.golang
// paired with looplab/fsm and gorilla/websocket in the same device-bridge
// topology), and on original_source/hc2mqtt.py's on_message/on_connect
// handlers for the topic-parsing and re-subscription shape.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/hcpy-go/bridge/internal/session"
	"github.com/hcpy-go/bridge/internal/wire"
)

// nameProgramSessionSummary is the one feature key that forces a publish
// on every update regardless of whether the value actually changed
// (spec.md §4.6).
const nameProgramSessionSummary = "BSH.Common.Status.ProgramSessionSummary.Latest"

// Bridge is the MQTT-facing counterpart of a set of device Supervisors. It
// implements supervisor.Sink.
type Bridge struct {
	client mqtt.Client
	prefix string
	reg    *Registry
	log    *logrus.Entry

	mu        sync.Mutex
	lastState map[string]map[string]string // device -> feature name -> last-published stringified value
}

// New constructs a Bridge publishing under prefix (e.g. "homeconnect/") and
// dispatching commands to sessions held in reg.
func New(client mqtt.Client, prefix string, reg *Registry, log *logrus.Entry) *Bridge {
	if !strings.HasSuffix(prefix, "/") && prefix != "" {
		prefix += "/"
	}
	return &Bridge{
		client:    client,
		prefix:    prefix,
		reg:       reg,
		log:       log,
		lastState: make(map[string]map[string]string),
	}
}

// Start publishes the bridge-level LWT as online and subscribes every
// device's command topics. Call it once at startup and again from the
// MQTT client's OnConnect handler, since paho does not remember
// subscriptions made before a disconnect (original_source/hc2mqtt.py's
// on_connect handler does the same resubscription).
func (b *Bridge) Start(devices []string) error {
	if token := b.client.Publish(b.prefix+"LWT", 1, true, "online"); token.Wait() && token.Error() != nil {
		return fmt.Errorf("bridge: publishing LWT: %w", token.Error())
	}
	for _, device := range devices {
		if err := b.subscribeDevice(device); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) subscribeDevice(device string) error {
	base := b.prefix + device + "/"
	topics := map[string]byte{
		base + "set":              1,
		base + "activeProgram":    1,
		base + "selectedProgram":  1,
	}
	for topic, qos := range topics {
		token := b.client.Subscribe(topic, qos, b.handleCommand(device, topic, base))
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("bridge: subscribing %s: %w", topic, token.Error())
		}
	}
	return nil
}

// handleCommand returns the paho MessageHandler for one device's command
// topics, per spec.md §4.6 ("On message receipt the Bridge parses the
// topic, JSON-decodes the payload, looks up the device's Session, and
// invokes get(resource, action=POST, data=payload)").
func (b *Bridge) handleCommand(device, topic, base string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		suffix := strings.TrimPrefix(msg.Topic(), base)

		var resource string
		switch suffix {
		case "set":
			resource = "/ro/values"
		case "activeProgram":
			resource = "/ro/activeProgram"
		case "selectedProgram":
			resource = "/ro/selectedProgram"
		default:
			b.log.WithField("topic", msg.Topic()).Warn("unrecognized command topic")
			return
		}

		sess, ok := b.reg.Get(device)
		if !ok {
			b.log.WithFields(logrus.Fields{"device": device, "resource": resource}).
				Error("dropping command: device is not connected")
			return
		}

		data, err := decodeCommandPayload(suffix, msg.Payload())
		if err != nil {
			b.log.WithError(err).WithField("device", device).Warn("dropping command: invalid payload")
			return
		}

		if err := sess.Get(context.Background(), resource, nil, wire.ActionPost, data); err != nil {
			b.log.WithError(err).WithFields(logrus.Fields{"device": device, "resource": resource}).
				Warn("command rejected")
		}
	}
}

// decodeCommandPayload parses a command topic's JSON payload into the
// shape Session.Get expects: /ro/values carries an array of {uid, value}
// objects, while the program topics carry a single object.
func decodeCommandPayload(suffix string, payload []byte) (interface{}, error) {
	if suffix == "set" {
		var items []map[string]interface{}
		if err := json.Unmarshal(payload, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var item map[string]interface{}
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// HandleEvent implements supervisor.Sink: it publishes a decoded Session
// event to the appropriate MQTT subtree, per spec.md §4.6's state/event
// split and change-gated publication policy.
func (b *Bridge) HandleEvent(device string, ev session.Event) {
	switch ev.Type {
	case session.EventState:
		b.publishState(device, ev.Data)
	case session.EventInfo:
		b.publishInfo(device, ev.Resource, ev.Data)
	case session.EventError:
		b.log.WithFields(logrus.Fields{"device": device, "resource": ev.Resource}).
			WithField("code", ev.Data["error"]).Warn("appliance reported error")
	}
}

func (b *Bridge) publishState(device string, data map[string]interface{}) {
	for name, value := range data {
		topicKind := "state"
		if strings.Contains(name, ".Event.") {
			topicKind = "event"
		}

		valueStr := stringifyValue(value)

		if topicKind == "state" && name != nameProgramSessionSummary {
			if !b.changed(device, name, valueStr) {
				continue
			}
		}

		topic := fmt.Sprintf("%s%s/%s/%s", b.prefix, device, topicKind, featureTopicSegment(name))
		b.publishRetained(topic, payloadFor(topicKind, name, value))
	}
}

func (b *Bridge) publishInfo(device, resource string, data map[string]interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		b.log.WithError(err).Warn("failed to encode info payload")
		return
	}
	topic := fmt.Sprintf("%s%s/info/%s", b.prefix, device, strings.Trim(resource, "/"))
	b.publishRetained(topic, payload)
}

// payloadFor renders the publication body. Event topics carry
// {event_type: value} per spec.md §4.6; state topics carry the bare value.
func payloadFor(topicKind, name string, value interface{}) []byte {
	if topicKind == "event" {
		b, err := json.Marshal(map[string]interface{}{"event_type": value})
		if err == nil {
			return b
		}
	}
	switch v := value.(type) {
	case string:
		return []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return []byte(fmt.Sprintf("%v", v))
		}
		return b
	}
}

func (b *Bridge) publishRetained(topic string, payload []byte) {
	token := b.client.Publish(topic, 1, true, payload)
	if token.Wait() && token.Error() != nil {
		b.log.WithError(token.Error()).WithField("topic", topic).Warn("publish failed")
	}
}

// changed reports whether name's value differs from the last value
// published for device, recording valueStr as the new baseline. Events are
// never cached here; only state-subtree keys call this.
func (b *Bridge) changed(device, name, valueStr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	perDevice, ok := b.lastState[device]
	if !ok {
		perDevice = make(map[string]string)
		b.lastState[device] = perDevice
	}

	if prev, ok := perDevice[name]; ok && prev == valueStr {
		return false
	}
	perDevice[name] = valueStr
	return true
}

// SetOnline implements supervisor.Sink: publishes the per-device liveness
// topic, retained, per spec.md §4.6.
func (b *Bridge) SetOnline(device string, online bool) {
	b.mu.Lock()
	delete(b.lastState, device)
	b.mu.Unlock()

	payload := "offline"
	if online {
		payload = "online"
	}
	b.publishRetained(b.prefix+device+"/LWT", []byte(payload))
}

// Register implements supervisor.Sink.
func (b *Bridge) Register(device string, s *session.Session) {
	b.reg.Register(device, s)
}

// Unregister implements supervisor.Sink.
func (b *Bridge) Unregister(device string, s *session.Session) {
	b.reg.Unregister(device, s)
}

// featureTopicSegment renders a feature's dotted name as the topic segment
// spec.md §4.6 specifies: lowercased, with '.' replaced by '_'.
func featureTopicSegment(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), ".", "_")
}

func stringifyValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
