// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

import "github.com/cznic/mathutil"

// find locates a free block able to hold reqWords words, using whichever
// discovery strategy a.opts.Mode selects (spec.md §4.4). It returns the
// block's header word and size, or header == 0 if none fit.
func (a *Allocator) find(reqWords int) (header, size int, err error) {
	switch a.opts.Mode {
	case ModeImplicitBestFit:
		return a.findBestFitImplicit(reqWords)
	case ModeExplicit:
		return a.findFirstFitExplicit(reqWords)
	default:
		return a.findFirstFitImplicit(reqWords)
	}
}

// findFirstFitImplicit walks every block from the first to the bump
// frontier and returns the first free one large enough.
func (a *Allocator) findFirstFitImplicit(reqWords int) (header, size int, err error) {
	cur := a.prologue + 1
	for cur < a.currentHeap {
		tag, err := a.readTag(cur)
		if err != nil {
			return 0, 0, err
		}

		sz := tagSize(tag)
		if sz <= 0 {
			return 0, 0, &ErrCorrupt{CorruptBadSize, cur}
		}

		if !tagAllocated(tag) && sz >= reqWords {
			return cur, sz, nil
		}

		cur += sz
	}

	return 0, 0, nil
}

// findBestFitImplicit walks every block, keeping the smallest free block
// seen that is still large enough, and exits immediately on an exact
// match (spec.md §4.4; grounded on original_source/mm.c's
// findBestFreeSpace).
func (a *Allocator) findBestFitImplicit(reqWords int) (header, size int, err error) {
	best, bestSize := 0, 0
	cur := a.prologue + 1
	for cur < a.currentHeap {
		tag, err := a.readTag(cur)
		if err != nil {
			return 0, 0, err
		}

		sz := tagSize(tag)
		if sz <= 0 {
			return 0, 0, &ErrCorrupt{CorruptBadSize, cur}
		}

		if !tagAllocated(tag) && sz >= reqWords {
			if sz == reqWords {
				return cur, sz, nil
			}

			if best == 0 {
				best, bestSize = cur, sz
			} else if smaller := mathutil.Min(bestSize, sz); smaller != bestSize {
				best, bestSize = cur, smaller
			}
		}

		cur += sz
	}

	return best, bestSize, nil
}

// findFirstFitExplicit follows the free list's next_offset chain from the
// prologue's head and returns the first free block large enough.
func (a *Allocator) findFirstFitExplicit(reqWords int) (header, size int, err error) {
	cur, err := a.freeListHead()
	if err != nil {
		return 0, 0, err
	}

	for cur != 0 {
		tag, err := a.readTag(cur)
		if err != nil {
			return 0, 0, err
		}

		if tagAllocated(tag) {
			return 0, 0, &ErrCorrupt{CorruptFreeChain, cur}
		}

		sz := tagSize(tag)
		if sz >= reqWords {
			return cur, sz, nil
		}

		next, _, err := a.readFreeLinks(cur, sz)
		if err != nil {
			return 0, 0, err
		}

		if next == 0 {
			break
		}

		cur += next
	}

	return 0, 0, nil
}
