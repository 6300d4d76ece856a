package wire

import (
	"strings"
	"testing"
)

func TestMarshalSwapsApostrophes(t *testing.T) {
	sID := 1
	msgID := 2
	msg := &Message{
		SessionID: &sID,
		MsgID:     &msgID,
		Resource:  "/ro/values",
		Version:   1,
		Action:    ActionPost,
		Data:      []map[string]interface{}{{"value": "it's on"}},
	}

	b, err := Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "'") {
		t.Fatalf("expected no apostrophes in output: %s", b)
	}
}

func TestUnmarshalRoundTrip(t *testing.T) {
	raw := []byte(`{"sID":1,"msgID":2,"resource":"/ei/initialValues","version":2,"action":"POST","data":[{"edMsgID":1000}]}`)

	msg, err := Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Resource != "/ei/initialValues" || msg.Action != ActionPost {
		t.Fatalf("got %+v", msg)
	}
	item := msg.Item()
	if item == nil || item["edMsgID"].(float64) != 1000 {
		t.Fatalf("got item %v", item)
	}
}

func TestItemEmptyData(t *testing.T) {
	msg := &Message{}
	if msg.Item() != nil {
		t.Fatal("expected nil Item for empty Data")
	}
}

func TestAsDataNormalizesBareMap(t *testing.T) {
	got := AsData(map[string]interface{}{"uid": 1})
	if len(got) != 1 {
		t.Fatalf("expected single-element slice, got %v", got)
	}
}

func TestAsDataPassesThroughSlice(t *testing.T) {
	in := []map[string]interface{}{{"uid": 1}, {"uid": 2}}
	got := AsData(in)
	if len(got) != 2 {
		t.Fatalf("expected slice to pass through unchanged, got %v", got)
	}
}

func TestAsDataNil(t *testing.T) {
	if got := AsData(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
