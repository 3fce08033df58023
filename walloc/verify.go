// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

// Stats summarizes a Check pass over the managed region (spec.md §4.9 /
// §7's testable properties).
type Stats struct {
	Blocks          int
	AllocatedBlocks int
	FreeBlocks      int
	AllocatedWords  int
	FreeWords       int
}

// Check walks the entire managed region and, in explicit mode, the free
// list, verifying every boundary-tag invariant from spec.md §4.9:
//
//   - every header's tag matches its footer's tag
//   - blocks exactly tile the region from the first block to the bump
//     frontier, with no gaps and no overlaps
//   - no two physically adjacent blocks are both free
//   - (explicit mode) the free list visits every free block exactly
//     once, in strictly increasing address order
//
// It returns the Stats gathered during the walk even when it also
// returns a non-nil *ErrCorrupt identifying the first violation found.
func (a *Allocator) Check() (Stats, error) {
	var st Stats

	cur := a.prologue + 1
	prevFree := false

	for cur < a.currentHeap {
		tag, err := a.readTag(cur)
		if err != nil {
			return st, err
		}

		size := tagSize(tag)
		if size < minBlockWords || size%2 != 0 {
			return st, &ErrCorrupt{CorruptBadSize, cur}
		}

		footer := footerOf(cur, size)
		if footer >= a.currentHeap {
			return st, &ErrCorrupt{CorruptTiling, cur}
		}

		ftag, err := a.readTag(footer)
		if err != nil {
			return st, err
		}
		if ftag != tag {
			return st, &ErrCorrupt{CorruptTagMismatch, cur}
		}

		allocated := tagAllocated(tag)
		if !allocated && prevFree {
			return st, &ErrCorrupt{CorruptAdjacentFree, cur}
		}
		prevFree = !allocated

		st.Blocks++
		if allocated {
			st.AllocatedBlocks++
			st.AllocatedWords += size
		} else {
			st.FreeBlocks++
			st.FreeWords += size
		}

		cur += size
	}

	if cur != a.currentHeap {
		return st, &ErrCorrupt{CorruptTiling, cur}
	}

	if a.opts.Mode == ModeExplicit {
		if err := a.checkFreeList(st.FreeBlocks); err != nil {
			return st, err
		}
	}

	return st, nil
}

// checkFreeList walks the free list from its head and confirms it visits
// exactly wantBlocks free blocks, in strictly increasing address order,
// with consistent next/prev links (spec.md §4.9).
func (a *Allocator) checkFreeList(wantBlocks int) error {
	head, err := a.freeListHead()
	if err != nil {
		return err
	}

	visited := 0
	prevHeader := a.prologue
	cur := head

	for cur != 0 {
		if cur <= prevHeader {
			return &ErrCorrupt{CorruptFreeChain, cur}
		}

		tag, err := a.readTag(cur)
		if err != nil {
			return err
		}
		if tagAllocated(tag) {
			return &ErrCorrupt{CorruptFreeChain, cur}
		}

		size := tagSize(tag)
		next, prev, err := a.readFreeLinks(cur, size)
		if err != nil {
			return err
		}

		wantPrev := cur - prevHeader
		if prev != wantPrev {
			return &ErrCorrupt{CorruptFreeChain, cur}
		}

		visited++
		prevHeader = cur
		if next == 0 {
			cur = 0
		} else {
			cur += next
		}
	}

	if visited != wantBlocks {
		return &ErrCorrupt{CorruptFreeListSize, a.prologue}
	}

	return nil
}
