// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

import (
	"bytes"
	"flag"
	"math/rand"
	"sort"
	"testing"

	"github.com/cznic/sortutil"

	"github.com/wordheap/walloc/memheap"
)

var (
	rndN       = flag.Int("N", 96, "allocator rnd test block count")
	rndSizeCap = flag.Int("lim", 512, "allocator rnd test block size limit")
)

func newTestAllocator(t *testing.T, mode Mode) *Allocator {
	t.Helper()
	h := memheap.New(0)
	a := New(h, Options{Mode: mode})
	if err := a.Init(); err != nil {
		t.Fatal(err)
	}
	return a
}

func allModes(t *testing.T, f func(t *testing.T, mode Mode)) {
	for _, m := range []Mode{ModeImplicitFirstFit, ModeImplicitBestFit, ModeExplicit} {
		m := m
		t.Run(m.String(), func(t *testing.T) {
			f(t, m)
		})
	}
}

// sortedPtrs returns ref's keys in increasing address order, in the shape
// of the teacher's stableRef (falloc_test.go): map iteration order is
// randomized per-run, and a seeded rand.Source is only reproducible end to
// end if everything downstream of it, including which block a given pass
// touches first, is made deterministic too.
func sortedPtrs(ref map[Ptr][]byte) []Ptr {
	keys := make(sortutil.Int64Slice, 0, len(ref))
	for p := range ref {
		keys = append(keys, int64(p))
	}
	sort.Sort(keys)

	out := make([]Ptr, len(keys))
	for i, k := range keys {
		out[i] = Ptr(k)
	}
	return out
}

func mustCheck(t *testing.T, a *Allocator) Stats {
	t.Helper()
	st, err := a.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	return st
}

// TestInitAllocate24 is spec.md §8 scenario 1.
func TestInitAllocate24(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		p := a.Allocate(24)
		if p == Null {
			t.Fatal("Allocate(24) returned Null")
		}

		if g, e := p, Ptr(2); g != e {
			t.Fatalf("pointer = %v, want %v", g, e)
		}

		tag, err := a.readTag(headerOfPtr(p))
		if err != nil {
			t.Fatal(err)
		}

		if g, e := tagSize(tag), 8; g != e {
			t.Fatalf("header size = %d, want %d", g, e)
		}

		if !tagAllocated(tag) {
			t.Fatal("header status not allocated")
		}

		if g, e := a.currentHeap, 9; g != e {
			t.Fatalf("currentHeap = %d, want %d", g, e)
		}

		mustCheck(t, a)
	})
}

// TestAllocateFreeReallocateReuse is spec.md §8 scenario 2.
func TestAllocateFreeReallocateReuse(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		pa := a.Allocate(16)
		a.Free(pa)
		pb := a.Allocate(16)

		if pb != pa {
			t.Fatalf("b (%v) != a (%v)", pb, pa)
		}

		st := mustCheck(t, a)
		if g, e := st.Blocks, 1; g != e {
			t.Fatalf("blocks = %d, want %d", g, e)
		}

		if g, e := st.AllocatedWords, 6; g != e {
			t.Fatalf("allocated words = %d, want %d", g, e)
		}
	})
}

// TestSplitOnPartialReuse is spec.md §8 scenario 3.
func TestSplitOnPartialReuse(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		big := a.Allocate(120) // blockWordsFor(120) = 32 words
		bigHeader := headerOfPtr(big)
		sentinel := a.Allocate(8) // keeps big from abutting the bump frontier
		a.Free(big)

		small := a.Allocate(8) // blockWordsFor(8) = 4 words
		if headerOfPtr(small) != bigHeader {
			t.Fatalf("split block header = %d, want %d", headerOfPtr(small), bigHeader)
		}

		tag, err := a.readTag(bigHeader)
		if err != nil {
			t.Fatal(err)
		}
		if g, e := tagSize(tag), 4; g != e {
			t.Fatalf("allocated size = %d, want %d", g, e)
		}

		freeHeader := bigHeader + 4
		ftag, err := a.readTag(freeHeader)
		if err != nil {
			t.Fatal(err)
		}
		if g, e := tagSize(ftag), 28; g != e {
			t.Fatalf("remainder size = %d, want %d", g, e)
		}
		if tagAllocated(ftag) {
			t.Fatal("remainder marked allocated")
		}

		stag, err := a.readTag(headerOfPtr(sentinel))
		if err != nil {
			t.Fatal(err)
		}
		if !tagAllocated(stag) {
			t.Fatal("sentinel block was unexpectedly freed")
		}

		mustCheck(t, a)
	})
}

// TestForwardCoalesce is spec.md §8 scenario 4.
func TestForwardCoalesce(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		pa := a.Allocate(16)
		pb := a.Allocate(16)
		pc := a.Allocate(16)
		_ = pc

		a.Free(pb)
		a.Free(pa)

		tag, err := a.readTag(headerOfPtr(pa))
		if err != nil {
			t.Fatal(err)
		}
		if g, e := tagSize(tag), 12; g != e {
			t.Fatalf("coalesced size = %d, want %d", g, e)
		}
		if tagAllocated(tag) {
			t.Fatal("coalesced block marked allocated")
		}

		mustCheck(t, a)
	})
}

// TestReallocGrowInPlace is spec.md §8 scenario 5. The scenario names a
// resulting header size of 8 words, which is only internally consistent
// with blockWordsFor if the grow target is 24 bytes (align8(24)/4+2 == 8,
// the same formula scenario 1 uses); reallocating to 48 bytes as the
// scenario's prose literally says would require a 14-word block. The test
// uses 24 to match the invariant the scenario actually asserts.
func TestReallocGrowInPlace(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		pa := a.Allocate(16)
		pb := a.Allocate(16)
		a.Free(pb)

		p := a.Reallocate(pa, 24)
		if p != pa {
			t.Fatalf("grew pointer %v != original %v", p, pa)
		}

		tag, err := a.readTag(headerOfPtr(pa))
		if err != nil {
			t.Fatal(err)
		}
		if g, e := tagSize(tag), 8; g != e {
			t.Fatalf("grown header size = %d, want %d", g, e)
		}

		mustCheck(t, a)
	})
}

// TestReallocRequiresCopy is spec.md §8 scenario 6.
func TestReallocRequiresCopy(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		pa := a.Allocate(16)
		copy(a.Payload(pa), []byte("0123456789abcdef"))
		pb := a.Allocate(16)

		p := a.Reallocate(pa, 48)
		if p == pa {
			t.Fatal("expected a different pointer")
		}

		if g, e := a.Payload(p)[:16], []byte("0123456789abcdef"); !bytes.Equal(g, e) {
			t.Fatalf("copied payload = %q, want %q", g, e)
		}

		aTag, err := a.readTag(headerOfPtr(pa))
		if err != nil {
			t.Fatal(err)
		}
		if tagAllocated(aTag) {
			t.Fatal("old block still marked allocated")
		}

		bTag, err := a.readTag(headerOfPtr(pb))
		if err != nil {
			t.Fatal(err)
		}
		if !tagAllocated(bTag) {
			t.Fatal("unrelated block b was freed")
		}

		mustCheck(t, a)
	})
}

func TestBoundaryBehaviors(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		if p := a.Allocate(0); p != Null {
			tag, err := a.readTag(headerOfPtr(p))
			if err != nil {
				t.Fatal(err)
			}
			if !tagAllocated(tag) {
				t.Fatal("Allocate(0) block not allocated")
			}
			a.Free(p)
		}

		a.Free(Null) // must not panic

		p := a.Reallocate(Null, 32)
		if p == Null {
			t.Fatal("Reallocate(Null, 32) returned Null")
		}

		if g := a.Reallocate(p, 0); g != Null {
			t.Fatalf("Reallocate(p, 0) = %v, want Null", g)
		}

		tag, err := a.readTag(headerOfPtr(p))
		if err != nil {
			t.Fatal(err)
		}
		if tagAllocated(tag) {
			t.Fatal("Reallocate(p, 0) did not free p")
		}

		mustCheck(t, a)
	})
}

func TestReallocateIdempotentSameSize(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		p := a.Allocate(40)
		copy(a.Payload(p), bytes.Repeat([]byte{'x'}, 40))

		p1 := a.Reallocate(p, 40)
		p2 := a.Reallocate(p1, 40)

		if g, e := a.Payload(p2), bytes.Repeat([]byte{'x'}, 40); !bytes.Equal(g, e) {
			t.Fatalf("payload changed across idempotent reallocations")
		}

		mustCheck(t, a)
	})
}

func TestPayloadAlignment(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)

		for _, n := range []int{0, 1, 7, 8, 9, 100, 4096} {
			p := a.Allocate(n)
			if p == Null {
				t.Fatalf("Allocate(%d) returned Null", n)
			}

			off := int64(headerOfPtr(p)+1) * wordBytes
			if off%8 != 0 {
				t.Fatalf("payload offset %d for size %d not 8-byte aligned", off, n)
			}
		}

		mustCheck(t, a)
	})
}

// TestAllocatorRnd drives a pseudo-random sequence of allocate/free/resize
// operations against a reference map, in the shape of the teacher's
// TestAllocatorRnd (falloc_test.go): a seeded rand.Source, several passes
// of allocate-then-check, free-a-random-third, resize-remaining, re-check.
// Unlike the teacher's atom-balance bookkeeping, correctness here is
// verified directly against Check's invariants after every mutating call.
func TestAllocatorRnd(t *testing.T) {
	allModes(t, func(t *testing.T, mode Mode) {
		a := newTestAllocator(t, mode)
		rng := rand.New(rand.NewSource(42))
		ref := map[Ptr][]byte{}

		fill := func(b []byte, seed int) {
			for i := range b {
				b[i] = byte(seed + i)
			}
		}

		for pass := 0; pass < 3; pass++ {
			for i := 0; i < *rndN; i++ {
				n := rng.Intn(*rndSizeCap + 1)
				b := make([]byte, n)
				fill(b, i)

				p := a.Allocate(n)
				if p == Null {
					t.Fatalf("pass %d, i %d: Allocate(%d) failed", pass, i, n)
				}

				copy(a.Payload(p), b)
				ref[p] = b
				mustCheck(t, a)
			}

			for _, p := range sortedPtrs(ref) {
				if got, want := a.Payload(p)[:len(ref[p])], ref[p]; !bytes.Equal(got, want) {
					t.Fatalf("payload mismatch for %v", p)
				}
			}

			for _, p := range sortedPtrs(ref) {
				if rng.Intn(3) != 0 {
					continue
				}
				a.Free(p)
				delete(ref, p)
				mustCheck(t, a)
			}

			for _, p := range sortedPtrs(ref) {
				want := ref[p]
				nsz := len(want)
				switch rng.Intn(2) {
				case 0:
					nsz = nsz*3/4 + 1
				case 1:
					nsz = nsz*2 + 1
				}

				nb := make([]byte, nsz)
				copy(nb, want)
				fill(nb[min(len(want), nsz):], pass*7919+nsz)

				np := a.Reallocate(p, nsz)
				if np == Null {
					t.Fatalf("Reallocate(%v, %d) failed", p, nsz)
				}

				if got := a.Payload(np)[:min(len(want), nsz)]; !bytes.Equal(got, want[:min(len(want), nsz)]) {
					t.Fatalf("realloc round-trip mismatch for %v -> %v", p, np)
				}

				copy(a.Payload(np), nb)
				delete(ref, p)
				ref[np] = nb
				mustCheck(t, a)
			}
		}
	})
}
