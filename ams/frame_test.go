package ams

import "testing"

func TestFramePrependBuildsOutermostLast(t *testing.T) {
	f := NewFrame(32)
	if err := f.Prepend([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("prepend payload: %v", err)
	}
	if err := f.PrependUint32(7); err != nil {
		t.Fatalf("prepend uint32: %v", err)
	}
	if err := f.PrependUint16(1); err != nil {
		t.Fatalf("prepend uint16: %v", err)
	}

	got := f.Bytes()
	want := []byte{1, 0, 7, 0, 0, 0, 0xAA, 0xBB}
	if len(got) != len(want) {
		t.Fatalf("frame length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestFramePrependFailsWhenCapacityExhausted(t *testing.T) {
	f := NewFrame(2)
	if err := f.Prepend([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error prepending past capacity")
	}
}

func TestFrameResetThenLimitExposesFreshWindow(t *testing.T) {
	f := NewFrame(16)
	if err := f.Prepend([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("prepend: %v", err)
	}

	f.Reset()
	raw := f.RawData()
	if len(raw) != f.Capacity() {
		t.Fatalf("RawData length = %d after Reset, want full capacity %d", len(raw), f.Capacity())
	}
	copy(raw, []byte{9, 9, 9})
	f.Limit(3)

	if f.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", f.Len())
	}
	if f.Bytes()[0] != 9 {
		t.Fatalf("Bytes()[0] = %d, want 9", f.Bytes()[0])
	}
}

func TestFrameClearKeepsCapacity(t *testing.T) {
	f := NewFrame(8)
	f.Reset()
	f.Limit(5)
	f.Clear()
	if f.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", f.Len())
	}
	if f.Capacity() != 8 {
		t.Fatalf("Capacity() = %d after Clear, want 8", f.Capacity())
	}
}

func TestFrameAppendFailsPastCapacity(t *testing.T) {
	f := NewFrame(4)
	f.Reset()
	if err := f.Append([]byte{1, 2, 3, 4, 5}); err == nil {
		t.Fatalf("expected buffer overflow error")
	}
}
