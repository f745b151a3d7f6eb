package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func TestHub_PublishReachesOnlyThatBooking(t *testing.T) {
	hub := NewHub()
	a, b := uuid.New(), uuid.New()

	subA := hub.Subscribe(a)
	subB := hub.Subscribe(b)
	defer subA.Close()
	defer subB.Close()

	hub.Publish(a, map[string]string{"booking_status": "confirmed"})

	select {
	case msg := <-subA.Send:
		if !strings.Contains(string(msg), "confirmed") {
			t.Errorf("unexpected frame %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber of booking A got nothing")
	}

	select {
	case msg := <-subB.Send:
		t.Errorf("subscriber of booking B got %s", msg)
	default:
	}
}

func TestHub_CloseUnregisters(t *testing.T) {
	hub := NewHub()
	id := uuid.New()

	sub := hub.Subscribe(id)
	if got := hub.SubscriberCount(id); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}

	sub.Close()
	sub.Close()

	if got := hub.SubscriberCount(id); got != 0 {
		t.Errorf("count = %d after close, want 0", got)
	}
	// Publishing after close must not panic.
	hub.Publish(id, map[string]string{"x": "y"})
}

func TestHub_PublishDoesNotBlockOnFullBuffer(t *testing.T) {
	hub := NewHub()
	id := uuid.New()
	sub := hub.Subscribe(id)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(sub.Send)+10; i++ {
			hub.Publish(id, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestServe_StreamsInitialAndPublishedFrames(t *testing.T) {
	hub := NewHub()
	id := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, id, map[string]string{"booking_status": "pending"})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first map[string]string
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if first["booking_status"] != "pending" {
		t.Errorf("initial frame = %v", first)
	}

	// Serve registers before sending the initial frame.
	hub.Publish(id, map[string]string{"booking_status": "confirmed"})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pushed frame: %v", err)
	}
	var pushed map[string]string
	json.Unmarshal(raw, &pushed)
	if pushed["booking_status"] != "confirmed" {
		t.Errorf("pushed frame = %v", pushed)
	}
}
