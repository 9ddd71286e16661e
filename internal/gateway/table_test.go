package gateway

import (
	"errors"
	"testing"
)

func TestTableAllocateRelease(t *testing.T) {
	tbl := newTable(2)

	a, err := tbl.allocate(10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	b, err := tbl.allocate(11)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if a.handle == b.handle {
		t.Fatalf("allocate returned duplicate handle %v", a.handle)
	}
	if a.peer != a.handle {
		t.Errorf("fresh record peer = %v, want self %v", a.peer, a.handle)
	}

	if _, err := tbl.allocate(12); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("allocate on full table = %v, want ErrCapacityExceeded", err)
	}

	if got := tbl.get(a.handle); got != a {
		t.Fatalf("get(%v) = %p, want %p", a.handle, got, a)
	}

	tbl.release(a.handle)
	if got := tbl.get(a.handle); got != nil {
		t.Fatalf("get after release = %p, want nil", got)
	}
	if got := tbl.get(b.handle); got != b {
		t.Fatalf("release invalidated unrelated handle %v", b.handle)
	}
}

func TestTableStaleHandleAfterReuse(t *testing.T) {
	tbl := newTable(1)

	a, err := tbl.allocate(10)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	old := a.handle
	tbl.release(old)

	b, err := tbl.allocate(20)
	if err != nil {
		t.Fatalf("allocate after release: %v", err)
	}
	if handleIndex(b.handle) != handleIndex(old) {
		t.Fatalf("slot not reused: index %d, want %d", handleIndex(b.handle), handleIndex(old))
	}
	if b.handle == old {
		t.Fatal("reused slot produced the same handle")
	}
	if got := tbl.get(old); got != nil {
		t.Fatalf("stale handle resolved to reused slot (fd %d)", got.fd)
	}
	if b.fd != 20 || b.pending != nil || b.bytesRelayed != 0 {
		t.Errorf("reused record not zeroed: %+v", b)
	}
}

func TestTableDoubleReleaseNoop(t *testing.T) {
	tbl := newTable(2)

	a, _ := tbl.allocate(10)
	h := a.handle
	tbl.release(h)
	tbl.release(h)

	// The slot must return to the free list exactly once.
	if _, err := tbl.allocate(11); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	c, err := tbl.allocate(12)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	tbl.release(c.handle)
	if _, err := tbl.allocate(13); err != nil {
		t.Fatalf("allocate after single release: %v", err)
	}
	if _, err := tbl.allocate(14); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("allocate = %v, want ErrCapacityExceeded", err)
	}
}

func TestTableHandleNeverZero(t *testing.T) {
	tbl := newTable(1)
	for i := 0; i < 3; i++ {
		rec, err := tbl.allocate(i)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if rec.handle == 0 {
			t.Fatal("allocate produced handle 0")
		}
		tbl.release(rec.handle)
	}
}

func TestTableEach(t *testing.T) {
	tbl := newTable(4)
	a, _ := tbl.allocate(10)
	a.state = StateRelaying
	b, _ := tbl.allocate(11)
	b.state = StateAccepted

	var fds []int
	tbl.each(func(r *record) { fds = append(fds, r.fd) })
	if len(fds) != 2 {
		t.Fatalf("each visited %d records, want 2: %v", len(fds), fds)
	}

	tbl.release(a.handle)
	fds = fds[:0]
	tbl.each(func(r *record) { fds = append(fds, r.fd) })
	if len(fds) != 1 || fds[0] != 11 {
		t.Fatalf("each after release visited %v, want [11]", fds)
	}
}
