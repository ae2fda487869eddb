package web

import (
	"encoding/json"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("expected envelope on subscriber channel")
		return Envelope{}
	}
}

func TestHub_PublishDeliversEnvelope(t *testing.T) {
	h := NewHub(10, nil)
	ch, replay, cancel := h.Subscribe("")
	defer cancel()
	if len(replay) != 0 {
		t.Errorf("replay without Last-Event-ID = %d, want 0", len(replay))
	}

	h.Publish("status", map[string]string{"message": "Step 1: Detecting rooms..."})

	env := receive(t, ch)
	if env.ID == "" || env.Type != "status" {
		t.Errorf("envelope = %+v", env)
	}
	var wire struct {
		Type string `json:"type"`
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
		Timestamp float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(env.Raw, &wire); err != nil {
		t.Fatalf("Raw is not JSON: %v", err)
	}
	if wire.Type != "status" || wire.Data.Message != "Step 1: Detecting rooms..." || wire.Timestamp == 0 {
		t.Errorf("wire = %+v", wire)
	}
}

func TestHub_MultipleSubscribers(t *testing.T) {
	h := NewHub(0, nil)
	ch1, _, cancel1 := h.Subscribe("")
	ch2, _, cancel2 := h.Subscribe("")
	defer cancel1()
	defer cancel2()

	h.Publish("status", nil)

	if receive(t, ch1).ID != receive(t, ch2).ID {
		t.Error("subscribers should see the same envelope")
	}
}

func TestHub_DropsForSlowSubscriber(t *testing.T) {
	h := NewHub(0, nil)
	_, _, cancel := h.Subscribe("")
	defer cancel()

	for range subscriberBuffer + 5 {
		h.Publish("status", nil)
	}
	if got := h.Dropped(); got != 5 {
		t.Errorf("Dropped() = %d, want 5", got)
	}
}

func TestHub_ReplayAfterLastEventID(t *testing.T) {
	h := NewHub(3, nil)
	var ids []string
	probe, _, cancel := h.Subscribe("")
	for range 5 {
		h.Publish("status", nil)
		ids = append(ids, receive(t, probe).ID)
	}
	cancel()

	// History holds the last three; the client saw ids[2].
	_, replay, cancel2 := h.Subscribe(ids[2])
	defer cancel2()
	if len(replay) != 2 || replay[0].ID != ids[3] || replay[1].ID != ids[4] {
		t.Errorf("replay = %v, want ids %v", replay, ids[3:])
	}

	// The newest id replays nothing.
	_, replay, cancel3 := h.Subscribe(ids[4])
	defer cancel3()
	if len(replay) != 0 {
		t.Errorf("replay from newest id = %d, want 0", len(replay))
	}

	// An id that has left history, or was never issued, is live only.
	for _, id := range []string{ids[0], "01ZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		_, replay, cancel4 := h.Subscribe(id)
		if len(replay) != 0 {
			t.Errorf("replay from %s = %d envelopes, want none", id, len(replay))
		}
		cancel4()
	}
}

func TestHub_CancelRemovesSubscriber(t *testing.T) {
	h := NewHub(0, nil)
	ch, _, cancel := h.Subscribe("")
	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", h.Subscribers())
	}
	cancel()
	cancel()
	if h.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", h.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// Publishing with no subscribers must not block.
	h.Publish("status", nil)
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	h := NewHub(0, nil)
	ch, _, cancel := h.Subscribe("")
	defer cancel()

	h.Close()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}

	late, _, lateCancel := h.Subscribe("")
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Error("subscribing to a closed hub should yield a closed channel")
	}
	h.Publish("status", nil)
}

func TestHub_GalleryCollectsImages(t *testing.T) {
	h := NewHub(0, nil)

	h.Publish("room_detected", map[string]string{"id": "r1", "name": "Kitchen", "dimensions": "3m x 4m"})
	h.Publish("status", map[string]string{"message": "Processing room: Kitchen..."})
	h.Publish("furnished_view", map[string]string{"roomId": "r1", "image": "AAAA", "title": "Kitchen - Furnished View"})
	h.Publish("final_assembly", map[string]string{"image": "BBBB", "title": "Full Property - Assembled View"})

	images := h.Gallery()
	if len(images) != 2 {
		t.Fatalf("Gallery() = %d images, want 2", len(images))
	}
	if images[0].RoomName != "Kitchen" || images[0].URL != "data:image/png;base64,AAAA" {
		t.Errorf("images[0] = %+v", images[0])
	}
	if images[0].ID == "" || images[0].ID == images[1].ID {
		t.Errorf("gallery ids should be the unique envelope ids, got %q and %q", images[0].ID, images[1].ID)
	}
	if images[1].Kind != "final_assembly" {
		t.Errorf("images[1].Kind = %q", images[1].Kind)
	}
}
