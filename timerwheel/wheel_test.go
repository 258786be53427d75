package timerwheel

import "testing"

func TestPopDueOrderingAndTiebreak(t *testing.T) {
	w := New()
	w.Insert(100, "b1")
	w.Insert(50, "a")
	w.Insert(100, "b2")
	w.Insert(200, "c")

	due := w.PopDue(100)
	if len(due) != 3 {
		t.Fatalf("expected 3 due entries, got %d", len(due))
	}
	if due[0].Payload != "a" {
		t.Fatalf("expected earliest deadline first, got %v", due[0].Payload)
	}
	if due[1].Payload != "b1" || due[2].Payload != "b2" {
		t.Fatalf("expected insertion-order tiebreak, got %v %v", due[1].Payload, due[2].Payload)
	}
	if d, ok := w.NextDeadline(); !ok || d != 200 {
		t.Fatalf("expected next deadline 200, got %d ok=%v", d, ok)
	}
}

func TestCancelRemovesWithoutDisturbingOthers(t *testing.T) {
	w := New()
	ha := w.Insert(10, "a")
	w.Insert(20, "b")
	w.Cancel(ha)

	if w.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", w.Len())
	}
	due := w.PopDue(100)
	if len(due) != 1 || due[0].Payload != "b" {
		t.Fatalf("expected only b to remain, got %v", due)
	}
}

func TestCancelOfAlreadyPoppedIsNoop(t *testing.T) {
	w := New()
	h := w.Insert(5, "x")
	w.PopDue(5)
	w.Cancel(h) // must not panic
	if w.Len() != 0 {
		t.Fatalf("expected empty wheel, got %d", w.Len())
	}
}

func TestNextDeadlineEmpty(t *testing.T) {
	w := New()
	if _, ok := w.NextDeadline(); ok {
		t.Fatalf("expected no deadline on empty wheel")
	}
}
