package signal

import "testing"

func TestHub_EmitReachesSubscribers(t *testing.T) {
	h := NewHub()

	var got []string
	h.Subscribe("ping", func(payload string) {
		got = append(got, payload)
	})
	h.Subscribe("other", func(payload string) {
		t.Errorf("handler for %q signal received %q", "other", payload)
	})

	h.Emit("ping", "one")
	h.Emit("ping", "two")
	h.Emit("unsubscribed", "lost")

	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("received = %v; want [one two]", got)
	}
}

func TestHub_Cancel(t *testing.T) {
	h := NewHub()

	count := 0
	cancel := h.Subscribe("ping", func(string) { count++ })

	h.Emit("ping", "a")
	cancel()
	cancel() // idempotent
	h.Emit("ping", "b")

	if count != 1 {
		t.Errorf("handler ran %d times; want 1", count)
	}
}
