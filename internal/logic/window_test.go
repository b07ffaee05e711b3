package logic

import (
	"errors"
	"testing"
	"time"
)

func sampleAt(i int, temp float64) Sample {
	return Sample{
		Timestamp:   time.Date(2026, 1, 1, 12, 0, i, 0, time.UTC),
		Temperature: temp,
		Threshold:   100,
	}
}

func TestNewWindowDefaultCapacity(t *testing.T) {
	w := NewWindow(0)
	if w.Capacity() != DefaultCapacity {
		t.Errorf("expected capacity %d, got %d", DefaultCapacity, w.Capacity())
	}
	w = NewWindow(-5)
	if w.Capacity() != DefaultCapacity {
		t.Errorf("expected capacity %d for negative input, got %d", DefaultCapacity, w.Capacity())
	}
}

func TestWindowPushBelowCapacity(t *testing.T) {
	w := NewWindow(20)
	for i := 0; i < 5; i++ {
		w.Push(sampleAt(i, float64(i)))
	}

	got := w.Snapshot()
	if len(got) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(got))
	}
	for i, s := range got {
		if s.Temperature != float64(i) {
			t.Errorf("sample %d: expected %v, got %v", i, float64(i), s.Temperature)
		}
	}
}

func TestWindowSlidingBound(t *testing.T) {
	for _, n := range []int{21, 25, 40, 1000} {
		w := NewWindow(DefaultCapacity)
		for i := 0; i < n; i++ {
			w.Push(sampleAt(i, float64(i)))
			if w.Len() > DefaultCapacity {
				t.Fatalf("n=%d: window grew to %d after push %d", n, w.Len(), i)
			}
		}

		got := w.Snapshot()
		if len(got) != DefaultCapacity {
			t.Fatalf("n=%d: expected %d samples, got %d", n, DefaultCapacity, len(got))
		}
		for i, s := range got {
			want := float64(n - DefaultCapacity + i)
			if s.Temperature != want {
				t.Errorf("n=%d sample %d: expected %v, got %v", n, i, want, s.Temperature)
			}
		}
	}
}

func TestWindowEvictsExactlyOne(t *testing.T) {
	w := NewWindow(3)
	for i := 0; i < 3; i++ {
		w.Push(sampleAt(i, float64(i)))
	}
	w.Push(sampleAt(3, 3))

	got := w.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	if got[0].Temperature != 1 || got[2].Temperature != 3 {
		t.Errorf("expected [1 2 3], got [%v %v %v]", got[0].Temperature, got[1].Temperature, got[2].Temperature)
	}
}

func TestWindowExportMonotonic(t *testing.T) {
	w := NewWindow(5)
	prev := 0
	for i := 0; i < 30; i++ {
		w.Push(sampleAt(i, float64(i)))
		if w.ExportLen() != i+1 {
			t.Fatalf("push %d: expected export len %d, got %d", i, i+1, w.ExportLen())
		}
		if w.ExportLen() < prev {
			t.Fatalf("export log shrank from %d to %d", prev, w.ExportLen())
		}
		prev = w.ExportLen()
	}

	exported, err := w.Export()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exported) != 30 {
		t.Fatalf("expected 30 exported samples, got %d", len(exported))
	}
	for i, s := range exported {
		if s.Temperature != float64(i) {
			t.Errorf("exported %d: expected %v, got %v", i, float64(i), s.Temperature)
		}
	}
}

func TestWindowClear(t *testing.T) {
	w := NewWindow(5)
	for i := 0; i < 8; i++ {
		w.Push(sampleAt(i, float64(i)))
	}
	w.Clear()

	if w.Len() != 0 {
		t.Errorf("expected empty window after clear, got %d", w.Len())
	}
	if w.ExportLen() != 0 {
		t.Errorf("expected empty export log after clear, got %d", w.ExportLen())
	}
	if _, ok := w.Last(); ok {
		t.Error("expected no last sample after clear")
	}

	w.Push(sampleAt(9, 9))
	if w.ExportLen() != 1 {
		t.Errorf("expected export len 1 after clear and push, got %d", w.ExportLen())
	}
}

func TestWindowExportEmpty(t *testing.T) {
	w := NewWindow(5)
	got, err := w.Export()
	if !errors.Is(err, ErrNothingToExport) {
		t.Errorf("expected ErrNothingToExport, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil samples, got %d", len(got))
	}
}

func TestWindowSnapshotIsCopy(t *testing.T) {
	w := NewWindow(5)
	w.Push(sampleAt(0, 1))

	snap := w.Snapshot()
	snap[0].Temperature = 999

	last, ok := w.Last()
	if !ok {
		t.Fatal("expected a last sample")
	}
	if last.Temperature != 1 {
		t.Errorf("snapshot mutation leaked into window: got %v", last.Temperature)
	}
}
