// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

// Reallocate resizes the block p refers to, returning a (possibly
// different) pointer to a block holding at least size bytes of payload,
// or Null if no space could be found (spec.md §4.8). Reallocate(Null,
// size) behaves like Allocate(size); Reallocate(p, 0) behaves like
// Free(p), returning Null.
//
// A request that is no larger than the block's current capacity is a
// no-op that returns p unchanged: per spec.md's resolution of this
// Open Question, shrinking in place would require either leaving the
// freed tail stranded (violating the "no gaps" tiling invariant) or
// always splitting it off, which would make every marginal shrink pay
// for a split it may never benefit from. Callers that want the space
// back can Free the old pointer and Allocate the smaller size instead.
func (a *Allocator) Reallocate(p Ptr, size int) Ptr {
	if p == Null {
		return a.Allocate(size)
	}

	if size == 0 {
		a.Free(p)
		return Null
	}

	header := headerOfPtr(p)
	if !a.isValidHeader(header) {
		a.logf("walloc: Reallocate: %v not a valid block", p)
		return Null
	}

	tag, err := a.readTag(header)
	if err != nil || !tagAllocated(tag) {
		a.logf("walloc: Reallocate: %v not a live allocation", p)
		return Null
	}

	oldSize := tagSize(tag)
	reqWords := blockWordsFor(size)

	if reqWords <= oldSize {
		return p
	}

	grown, err := a.growInPlace(header, oldSize, reqWords)
	if err != nil {
		a.logf("walloc: Reallocate: %v", err)
		return Null
	}
	if grown {
		return p
	}

	np := a.Allocate(size)
	if np == Null {
		return Null
	}

	src := a.Payload(p)
	dst := a.Payload(np)
	copy(dst, src)
	a.Free(p)

	return np
}

// growInPlace attempts spec.md §4.8's in-place growth path: absorbing a
// free right neighbor that, combined with header's own block, is big
// enough to satisfy reqWords, splitting off any leftover. It reports
// false (with no error and no memory mutated) when growth in place isn't
// possible, leaving the caller to fall back to allocate-copy-free.
func (a *Allocator) growInPlace(header, oldSize, reqWords int) (bool, error) {
	next := nextHeaderOf(header, oldSize)

	// header's block already abuts the bump frontier: there is no tiled
	// neighbor to read a tag from, but the frontier itself is free space
	// this block can simply grow into, the same way alloc carves a fresh
	// block from it.
	if next == a.currentHeap {
		needBytes := int64(reqWords-oldSize) * wordBytes
		for a.heap.Size()-int64(a.currentHeap)*wordBytes < needBytes {
			if err := a.heap.Extend(growthBytes); err != nil {
				return false, err
			}
		}

		if err := a.writeBlockTags(header, reqWords, true); err != nil {
			return false, err
		}

		a.currentHeap = header + reqWords
		return true, nil
	}

	if next > a.currentHeap {
		return false, nil
	}

	tag, err := a.readTag(next)
	if err != nil {
		return false, err
	}
	if tagAllocated(tag) {
		return false, nil
	}

	nextSize := tagSize(tag)
	combined := oldSize + nextSize
	if combined < reqWords {
		return false, nil
	}

	atFrontier := next+nextSize == a.currentHeap
	if a.opts.Mode == ModeExplicit && !atFrontier {
		if err := a.removeFree(next, nextSize); err != nil {
			return false, err
		}
	}

	leftover := combined - reqWords
	if leftover < minBlockWords {
		if atFrontier {
			a.currentHeap = header + combined
		}
		return true, a.writeBlockTags(header, combined, true)
	}

	if err := a.writeBlockTags(header, reqWords, true); err != nil {
		return false, err
	}

	freeHeader := header + reqWords
	if err := a.writeBlockTags(freeHeader, leftover, false); err != nil {
		return false, err
	}

	if atFrontier {
		a.currentHeap = freeHeader
		return true, nil
	}

	return true, a.reintegrateFree(freeHeader, leftover)
}
