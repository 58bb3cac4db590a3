package coordinator

import (
	"fmt"
	"testing"
)

func rec(q string) Record { return Record{Query: q} }

func TestHistoryFillsThenEvictsOldest(t *testing.T) {
	h := NewHistory(3)

	for i := range 3 {
		if _, evicted := h.Push(rec(fmt.Sprint(i))); evicted {
			t.Fatalf("unexpected eviction at %d", i)
		}
	}
	if h.Len() != 3 || h.Cap() != 3 {
		t.Fatalf("expected len 3 cap 3, got %d/%d", h.Len(), h.Cap())
	}

	old, evicted := h.Push(rec("3"))
	if !evicted || old.Query != "0" {
		t.Fatalf("expected eviction of 0, got %q evicted=%v", old.Query, evicted)
	}
	if h.Len() != 3 {
		t.Fatalf("history must not exceed capacity, len=%d", h.Len())
	}

	got := h.Snapshot(0)
	want := []string{"1", "2", "3"}
	for i, r := range got {
		if r.Query != want[i] {
			t.Fatalf("snapshot[%d] = %q, want %q", i, r.Query, want[i])
		}
	}
}

func TestHistorySnapshotLimit(t *testing.T) {
	h := NewHistory(5)
	for i := range 7 {
		h.Push(rec(fmt.Sprint(i)))
	}

	got := h.Snapshot(2)
	if len(got) != 2 || got[0].Query != "5" || got[1].Query != "6" {
		t.Fatalf("expected newest two [5 6], got %+v", got)
	}
	if all := h.Snapshot(100); len(all) != 5 || all[0].Query != "2" {
		t.Fatalf("expected 5 records starting at 2, got %+v", all)
	}
}

func TestHistoryEmptySnapshot(t *testing.T) {
	h := NewHistory(0)
	if h.Cap() != 1 {
		t.Fatalf("expected minimum capacity 1, got %d", h.Cap())
	}
	if got := h.Snapshot(0); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil snapshot, got %#v", got)
	}
}
