// pattern: Imperative Shell

package logging

import "testing"

func TestNopLogger(t *testing.T) {
	logger := NopLogger().With("job", "j1")
	logger.Debug("ignored")
	logger.Info("ignored")
	logger.Warn("ignored")
	logger.Error("ignored")
	if logger.Scope() != "" {
		t.Errorf("Scope() = %q, want empty", logger.Scope())
	}
}

func TestTestLogManager_Drain(t *testing.T) {
	lm := NewTestLogManager(10)
	defer func() { _ = lm.Close() }()

	if got := lm.Drain(); len(got) != 0 {
		t.Fatalf("Drain() on empty manager = %v", got)
	}

	lm.For("web.jobs").Debug("job queued", "job", "j1", "pending", 1)
	lm.For("pipeline").With("job", "j1").Info("rooms detected", "count", 3)

	got := lm.Drain()
	if len(got) != 2 {
		t.Fatalf("Drain() = %d entries, want 2", len(got))
	}
	if got[0].Scope != "web.jobs" || got[0].Level != "DEBUG" {
		t.Errorf("first = %+v", got[0])
	}
	for _, e := range got {
		if e.Job != "j1" {
			t.Errorf("%q: Job = %q, want j1", e.Message, e.Job)
		}
	}
	if got[1].Fields["count"] != float64(3) {
		t.Errorf("count field = %v", got[1].Fields["count"])
	}

	_ = lm.Close()
	if got := lm.Drain(); got != nil {
		t.Errorf("Drain() after Close = %v", got)
	}
}
