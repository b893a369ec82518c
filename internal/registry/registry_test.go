package registry

import "testing"

type stubHandle struct {
	sent [][]byte
}

func (h *stubHandle) Send(payload []byte) error {
	h.sent = append(h.sent, payload)
	return nil
}

func TestRegistryPutGetRemove(t *testing.T) {
	reg := New()
	handle := &stubHandle{}

	reg.Put("conn-1", handle)
	if got, ok := reg.Get("conn-1"); !ok || got != handle {
		t.Fatalf("expected registered handle, got %v (%v)", got, ok)
	}
	if reg.Size() != 1 {
		t.Fatalf("expected size 1, got %d", reg.Size())
	}

	reg.Remove("conn-1")
	if _, ok := reg.Get("conn-1"); ok {
		t.Fatal("expected handle removed")
	}
	if reg.Size() != 0 {
		t.Fatalf("expected size 0, got %d", reg.Size())
	}
}

func TestRegistryGetAbsentIsNotAnError(t *testing.T) {
	reg := New()
	if _, ok := reg.Get("elsewhere"); ok {
		t.Fatal("expected absent lookup to report false")
	}
	// Removing an unknown id is a no-op.
	reg.Remove("elsewhere")
}

func TestRegistrySnapshotSorted(t *testing.T) {
	reg := New()
	reg.Put("conn-b", &stubHandle{})
	reg.Put("conn-a", &stubHandle{})

	snapshot := reg.Snapshot()
	if len(snapshot) != 2 || snapshot[0] != "conn-a" || snapshot[1] != "conn-b" {
		t.Fatalf("unexpected snapshot: %v", snapshot)
	}
}
