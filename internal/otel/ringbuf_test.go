package otel

import (
	"sync"
	"testing"
)

func TestPushAndSnapshot(t *testing.T) {
	r := NewRingBuffer(8)
	for i := 0; i < 5; i++ {
		r.Push(Event{Kind: KindQueryDispatch, Gen: uint64(i)})
	}

	snap := r.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("expected 5 events, got %d", len(snap))
	}
	for i, e := range snap {
		if e.Gen != uint64(i) {
			t.Errorf("snap[%d].Gen=%d, want %d", i, e.Gen, i)
		}
	}
}

func TestWrapAround(t *testing.T) {
	r := NewRingBuffer(4)
	for i := 0; i < 10; i++ {
		r.Push(Event{Kind: KindQueryDispatch, Gen: uint64(i)})
	}

	snap := r.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("expected 4 events, got %d", len(snap))
	}
	for i, e := range snap {
		if want := uint64(i + 6); e.Gen != want {
			t.Errorf("snap[%d].Gen=%d, want %d", i, e.Gen, want)
		}
	}
}

func TestLastWrapped(t *testing.T) {
	r := NewRingBuffer(4)
	for i := 0; i < 6; i++ {
		r.Push(Event{Kind: KindQueryDispatch, Gen: uint64(i)})
	}

	last2 := r.Last(2)
	if len(last2) != 2 {
		t.Fatalf("expected 2, got %d", len(last2))
	}
	if last2[0].Gen != 4 || last2[1].Gen != 5 {
		t.Errorf("expected [4,5], got [%d,%d]", last2[0].Gen, last2[1].Gen)
	}
	if got := r.Last(100); len(got) != 4 {
		t.Errorf("Last(100) returned %d events, want 4", len(got))
	}
	if got := r.Last(0); got != nil {
		t.Errorf("Last(0) = %v, want nil", got)
	}
}

func TestLastMatchingKeepsOrder(t *testing.T) {
	r := NewRingBuffer(16)
	r.Push(Event{Kind: KindQueryDispatch, Gen: 1})
	r.Push(Event{Kind: KindKeyPress})
	r.Push(Event{Kind: KindQueryComplete, Gen: 1})
	r.Push(Event{Kind: KindQueryDispatch, Gen: 2})
	r.Push(Event{Kind: KindKeyPress})
	r.Push(Event{Kind: KindQueryStale, Gen: 1})

	got := r.LastMatching(3, Event.IsQuery)
	if len(got) != 3 {
		t.Fatalf("expected 3 query events, got %d", len(got))
	}
	want := []EventKind{KindQueryComplete, KindQueryDispatch, KindQueryStale}
	for i, e := range got {
		if e.Kind != want[i] {
			t.Errorf("got[%d].Kind=%s, want %s", i, e.Kind, want[i])
		}
	}
}

func TestStats(t *testing.T) {
	r := NewRingBuffer(4)
	r.Push(Event{Kind: KindKeyPress})
	r.Push(Event{Kind: KindQueryDispatch})
	r.Push(Event{Kind: KindQueryDispatch})
	r.Push(Event{Kind: KindQueryError})
	r.Push(Event{Kind: KindQueryError})

	stats := r.Stats()
	if stats[KindKeyPress] != 0 {
		t.Errorf("evicted ui.key still counted: %d", stats[KindKeyPress])
	}
	if stats[KindQueryDispatch] != 2 {
		t.Errorf("query.dispatch=%d, want 2", stats[KindQueryDispatch])
	}
	if stats[KindQueryError] != 2 {
		t.Errorf("query.error=%d, want 2", stats[KindQueryError])
	}
}

func TestEmptySnapshot(t *testing.T) {
	r := NewRingBuffer(8)
	if snap := r.Snapshot(); snap != nil {
		t.Errorf("expected nil, got %v", snap)
	}
	if r.Len() != 0 {
		t.Errorf("expected 0, got %d", r.Len())
	}
}

func TestDeepCopyExtra(t *testing.T) {
	r := NewRingBuffer(4)
	extra := map[string]any{"mode": "filter"}
	r.Push(Event{Kind: KindQueryDispatch, Extra: extra})

	extra["mode"] = "sort"

	if got := r.Snapshot()[0].Extra["mode"]; got != "filter" {
		t.Errorf("extra was aliased: got %v", got)
	}
}

func TestDefaultCap(t *testing.T) {
	if got := NewRingBuffer(0).Cap(); got != DefaultRingSize {
		t.Errorf("Cap() = %d, want %d", got, DefaultRingSize)
	}
}

func TestConcurrentPushSnapshot(t *testing.T) {
	r := NewRingBuffer(64)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Push(Event{Kind: KindQueryDispatch})
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.Snapshot()
				_ = r.LastMatching(5, Event.IsQuery)
				_ = r.Stats()
			}
		}()
	}
	wg.Wait()

	if r.Len() != 64 {
		t.Errorf("Len() = %d, want 64", r.Len())
	}
}
