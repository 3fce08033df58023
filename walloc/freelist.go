// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

// This file implements explicit free-list maintenance (spec.md §4.5): a
// single doubly linked list of every free block, in strictly increasing
// address order, threaded through the blocks' own payload words, with its
// head offset stored in the prologue. The splice-on-removal cases below
// follow the same case-by-case shape as the teacher's Allocator.unlink
// (falloc.go); the insertion search — walk forward for a successor,
// falling back to a backward walk for a predecessor — has no counterpart
// in the teacher (whose free list is bucketed by size rather than
// address-ordered) and is instead grounded on original_source/mm.c's
// putFreeBlockInFreeList/takeFreeBlockOutOfTheList.

// freeListHead returns the header of the first free block, or 0 if the
// list is empty.
func (a *Allocator) freeListHead() (int, error) {
	off, err := a.heap.ReadWord(a.prologue)
	if err != nil {
		return 0, err
	}

	if off == 0 {
		return 0, nil
	}

	return a.prologue + int(off), nil
}

func (a *Allocator) setFreeListHead(header int) error {
	off := uint32(0)
	if header != 0 {
		off = uint32(header - a.prologue)
	}

	return a.heap.WriteWord(a.prologue, off)
}

// readFreeLinks returns a free block's next/prev offsets as stored in its
// payload (spec.md §3): next is the word distance to the next free
// block's header (0 if none), prev is the word distance back to the
// previous free block's header, or to the prologue if this is the head.
func (a *Allocator) readFreeLinks(header, size int) (next, prev int, err error) {
	nv, err := a.heap.ReadWord(header + 1)
	if err != nil {
		return 0, 0, err
	}

	pv, err := a.heap.ReadWord(footerOf(header, size) - 1)
	if err != nil {
		return 0, 0, err
	}

	return int(nv), int(pv), nil
}

func (a *Allocator) writeFreeLinks(header, size, next, prev int) error {
	if err := a.heap.WriteWord(header+1, uint32(next)); err != nil {
		return err
	}

	return a.heap.WriteWord(footerOf(header, size)-1, uint32(prev))
}

// setNextLink rewrites only the next-offset word of header, leaving its
// prev link and tags untouched.
func (a *Allocator) setNextLink(header, next int) error {
	return a.heap.WriteWord(header+1, uint32(next))
}

// setPrevLink rewrites only the prev-offset word of header. It needs
// header's size to find that word, since it lives just before the
// footer.
func (a *Allocator) setPrevLink(header, size, prev int) error {
	return a.heap.WriteWord(footerOf(header, size)-1, uint32(prev))
}

// scanForwardFirstFree returns the first free block at or after from, not
// going past the bump frontier. It is used to find a newly freed block's
// successor in address order (spec.md §4.5).
func (a *Allocator) scanForwardFirstFree(from int) (header, size int, err error) {
	cur := from
	for cur < a.currentHeap {
		tag, err := a.readTag(cur)
		if err != nil {
			return 0, 0, err
		}

		sz := tagSize(tag)
		if sz <= 0 {
			return 0, 0, &ErrCorrupt{CorruptBadSize, cur}
		}

		if !tagAllocated(tag) {
			return cur, sz, nil
		}

		cur += sz
	}

	return 0, 0, nil
}

// scanBackwardFirstFree returns the nearest free block strictly before
// from, walking block-by-block via footers (spec.md §4.2's prev_footer),
// or header 0 (the prologue) if no block before from is free.
func (a *Allocator) scanBackwardFirstFree(from int) (header, size int, err error) {
	cur := from
	for cur > a.prologue+1 {
		footer := prevFooterOf(cur)
		tag, err := a.readTag(footer)
		if err != nil {
			return 0, 0, err
		}

		sz := tagSize(tag)
		if sz <= 0 {
			return 0, 0, &ErrCorrupt{CorruptBadSize, footer}
		}

		prevHeader := footer - sz + 1
		if !tagAllocated(tag) {
			return prevHeader, sz, nil
		}

		cur = prevHeader
	}

	return a.prologue, 0, nil
}

// insertFree threads a free block of the given size into the free list in
// address order (spec.md §4.5). The block's header/footer must already
// carry free tags of that size.
func (a *Allocator) insertFree(header, size int) error {
	head, err := a.freeListHead()
	if err != nil {
		return err
	}

	if head == 0 {
		if err := a.writeFreeLinks(header, size, 0, header-a.prologue); err != nil {
			return err
		}
		return a.setFreeListHead(header)
	}

	succ, succSize, err := a.scanForwardFirstFree(nextHeaderOf(header, size))
	if err != nil {
		return err
	}

	if succ != 0 {
		_, succPrev, err := a.readFreeLinks(succ, succSize)
		if err != nil {
			return err
		}

		pred := succ - succPrev // may equal a.prologue

		if err := a.writeFreeLinks(header, size, succ-header, header-pred); err != nil {
			return err
		}

		if err := a.setPrevLink(succ, succSize, succ-header); err != nil {
			return err
		}

		if pred == a.prologue {
			return a.setFreeListHead(header)
		}

		return a.setNextLink(pred, header-pred)
	}

	pred, _, err := a.scanBackwardFirstFree(header)
	if err != nil {
		return err
	}

	if err := a.writeFreeLinks(header, size, 0, header-pred); err != nil {
		return err
	}

	if pred == a.prologue {
		return a.setFreeListHead(header)
	}

	return a.setNextLink(pred, header-pred)
}

// removeFree splices a free block of the given size out of the free
// list (the symmetric operation to insertFree).
func (a *Allocator) removeFree(header, size int) error {
	next, prev, err := a.readFreeLinks(header, size)
	if err != nil {
		return err
	}

	nextHeader := 0
	if next != 0 {
		nextHeader = header + next
	}

	predHeader := header - prev

	// setPrevLink needs nextHeader's own block size to find its prev-link
	// word, which lives just before its footer, not its header.
	nextSize := 0
	if nextHeader != 0 {
		tag, err := a.readTag(nextHeader)
		if err != nil {
			return err
		}
		nextSize = tagSize(tag)
	}

	switch {
	case predHeader == a.prologue && nextHeader == 0:
		return a.setFreeListHead(0)
	case predHeader == a.prologue && nextHeader != 0:
		if err := a.setPrevLink(nextHeader, nextSize, nextHeader-a.prologue); err != nil {
			return err
		}
		return a.setFreeListHead(nextHeader)
	case predHeader != a.prologue && nextHeader == 0:
		return a.setNextLink(predHeader, 0)
	default:
		if err := a.setNextLink(predHeader, nextHeader-predHeader); err != nil {
			return err
		}
		return a.setPrevLink(nextHeader, nextSize, nextHeader-predHeader)
	}
}
