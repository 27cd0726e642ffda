package containers

import (
	"math/rand/v2"
	"testing"
	"unsafe"
)

func TestRingBufferReserve(t *testing.T) {
	rb := NewRingBuffer[int](10)

	tests := []struct {
		name     string
		n        int
		wantOK   bool
		wantPos  int
		wantFull bool
	}{
		{"first", 4, true, 4, false},
		{"exact fit", 6, true, 10, false},
		{"overflow", 1, false, 10, true},
		{"zero at capacity", 0, true, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := rb.Reserve(tt.n)
			if ok != tt.wantOK || rb.Pos != tt.wantPos || rb.IsFull != tt.wantFull {
				t.Errorf("Reserve(%d) = ok %v pos %d full %v, want ok %v pos %d full %v",
					tt.n, ok, rb.Pos, rb.IsFull, tt.wantOK, tt.wantPos, tt.wantFull)
			}
		})
	}
}

func TestRingBufferInvariantUnderRandomUse(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	rb := NewRingBuffer[uint32](64)

	for i := 0; i < 10000; i++ {
		if r.IntN(20) == 0 {
			rb.Reset()
			if rb.Pos != 0 || rb.IsFull {
				t.Fatalf("reset left pos %d full %v", rb.Pos, rb.IsFull)
			}
			continue
		}

		n := r.IntN(16)
		before := rb.Pos
		_, ok := rb.Reserve(n)
		wouldExceed := before+n > rb.BufferSize

		if ok == wouldExceed {
			t.Fatalf("step %d: Reserve(%d) at %d returned ok=%v", i, n, before, ok)
		}
		if rb.IsFull != wouldExceed {
			t.Fatalf("step %d: IsFull=%v but append exceeding=%v", i, rb.IsFull, wouldExceed)
		}
		if !ok && rb.Pos != before {
			t.Fatalf("step %d: failed reserve moved the cursor", i)
		}
		if !rb.Invariant() {
			t.Fatalf("step %d: cursor %d out of [0, %d]", i, rb.Pos, rb.BufferSize)
		}
	}
}

func TestRingBufferFromBytes(t *testing.T) {
	type entry struct {
		A, B uint32
	}
	mapped := make([]byte, 10*int(unsafe.Sizeof(entry{}))+3)
	rb := NewRingBufferFromBytes[entry](mapped)
	if rb.BufferSize != 10 {
		t.Fatalf("BufferSize = %d, want 10", rb.BufferSize)
	}
	if !rb.Push(entry{A: 7, B: 9}) {
		t.Fatalf("push failed")
	}
	if mapped[0] != 7 || mapped[4] != 9 {
		t.Errorf("push did not write through to mapped memory: % x", mapped[:8])
	}

	empty := NewRingBufferFromBytes[entry](nil)
	if empty.Push(entry{}) || !empty.IsFull {
		t.Errorf("push into an empty mapping should fail and flag full")
	}
}
