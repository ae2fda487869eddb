package web

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"floorcast/internal/pipeline"
)

type fakeProcessor struct {
	mu      sync.Mutex
	seen    []string
	release chan struct{}
}

func (p *fakeProcessor) Run(ctx context.Context, job pipeline.Job, out pipeline.Emitter) error {
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.seen = append(p.seen, job.ID)
	p.mu.Unlock()
	out.Publish("status", map[string]string{"message": job.ID})
	return nil
}

func (p *fakeProcessor) jobs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func TestRunner_ProcessesInOrder(t *testing.T) {
	proc := &fakeProcessor{}
	hub := NewHub(10, nil)
	r := NewRunner(proc, hub, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := r.Submit(pipeline.Job{ID: id}); err != nil {
			t.Fatalf("Submit(%s) error = %v", id, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(proc.jobs()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := proc.jobs()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("processed %v, want [a b c]", got)
	}
}

func TestRunner_QueueFull(t *testing.T) {
	proc := &fakeProcessor{release: make(chan struct{})}
	r := NewRunner(proc, NewHub(0, nil), 1, nil)

	// Not started: the single slot fills and the next submit is refused.
	if err := r.Submit(pipeline.Job{ID: "a"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := r.Submit(pipeline.Job{ID: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}
}

func TestRunner_StopsWithContext(t *testing.T) {
	r := NewRunner(&fakeProcessor{}, NewHub(0, nil), 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	if err := r.Submit(pipeline.Job{ID: "late"}); !errors.Is(err, ErrRunnerStopped) {
		t.Errorf("Submit() after stop = %v, want ErrRunnerStopped", err)
	}
}
