package realtime

import (
	"testing"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub(1)
	id1, ch1 := h.Register()
	_, ch2 := h.Register()
	if h.Size() != 2 {
		t.Fatalf("expected 2 listeners, got %d", h.Size())
	}

	h.Broadcast(NewEvent(KindCSS, "stylesheets published", "css/components/a/a.css"))
	for i, ch := range []<-chan Event{ch1, ch2} {
		ev := <-ch
		if ev.Kind != KindCSS || len(ev.Files) != 1 {
			t.Fatalf("listener %d got unexpected event %+v", i, ev)
		}
	}

	h.Unregister(id1)
	h.Unregister(id1)
	if _, ok := <-ch1; ok {
		t.Fatalf("unregistered channel must be closed")
	}
	if h.Size() != 1 {
		t.Fatalf("expected 1 listener, got %d", h.Size())
	}
}

func TestHubDropsForSlowListener(t *testing.T) {
	h := NewHub(1)
	_, ch := h.Register()

	h.Broadcast(NewEvent(KindReload, "first"))
	h.Broadcast(NewEvent(KindReload, "second"))

	ev := <-ch
	if ev.Reason != "first" {
		t.Fatalf("expected first event, got %q", ev.Reason)
	}
	select {
	case ev := <-ch:
		t.Fatalf("second event should have been dropped, got %q", ev.Reason)
	default:
	}
}
