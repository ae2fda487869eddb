package feed

import (
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{"handshake", `{"type":"connected","message":"Stream connected"}`, Connected{Message: "Stream connected"}},
		{"status", `{"type":"status","data":{"message":"hi"},"timestamp":1.5}`, StatusUpdate{Message: "hi"}},
		{"status without data", `{"type":"status"}`, StatusUpdate{}},
		{"status with null data", `{"type":"status","data":null}`, StatusUpdate{}},
		{"status with scalar data", `{"type":"status","data":"oops"}`, StatusUpdate{}},
		{"style", `{"type":"style_description","data":{"description":"d"}}`, StyleDescription{Description: "d"}},
		{"view", `{"type":"furnished_view","data":{"roomId":"r1","image":"x","title":"t"}}`,
			View{Kind: KindFurnished, RoomID: "r1", Image: "x", Title: "t"}},
		{"final", `{"type":"final_assembly","data":{"image":"x"}}`, FinalAssembly{Image: "x"}},
		{"error", `{"type":"error","data":{"message":"boom"}}`, ServerError{Message: "boom"}},
		{"unknown", `{"type":"heartbeat"}`, Unknown{Type: "heartbeat"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_RoomDetected(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"room_detected","data":{"id":"r1","name":"Kitchen","dimensions":{"w":3,"h":4}}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	rd, ok := ev.(RoomDetected)
	if !ok {
		t.Fatalf("Decode() = %T, want RoomDetected", ev)
	}
	if rd.Room.ID != "r1" || rd.Room.Name != "Kitchen" {
		t.Errorf("room = %+v", rd.Room)
	}
	if rd.Room.DimensionsText() != `{"w":3,"h":4}` {
		t.Errorf("opaque dimensions = %s", rd.Room.DimensionsText())
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `["type"]`, `{"type":`} {
		if _, ok := Parse([]byte(raw)).(Malformed); !ok {
			t.Errorf("Parse(%q) should be Malformed", raw)
		}
	}
}

func TestKind_Label(t *testing.T) {
	if got := KindUnfurnished.Label(); got != "Unfurnished View" {
		t.Errorf("Label() = %q", got)
	}
	if !KindInterior.Valid() || Kind("new_image").Valid() {
		t.Error("Valid() mismatch")
	}
}
