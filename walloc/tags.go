// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

// A tag is the value stored in a block's header and footer word: bit 0 is
// the status bit (1 = allocated, 0 = free), the remaining bits hold the
// block size in words (spec.md §3, §4.1). Size is always even, so it never
// collides with the status bit.

func encodeTag(sizeWords int, allocated bool) uint32 {
	t := uint32(sizeWords)
	if allocated {
		t |= 1
	}
	return t
}

func tagSize(tag uint32) int { return int(tag &^ 1) }

func tagAllocated(tag uint32) bool { return tag&1 != 0 }

func (a *Allocator) readTag(word int) (uint32, error) {
	return a.heap.ReadWord(word)
}

// setSize rewrites only the size bits of the tag at word, preserving
// status (spec.md §4.1: "setting size preserves status").
func (a *Allocator) setSize(word, sizeWords int) error {
	old, err := a.heap.ReadWord(word)
	if err != nil {
		return err
	}

	return a.heap.WriteWord(word, encodeTag(sizeWords, tagAllocated(old)))
}

// setStatus rewrites only the status bit of the tag at word, preserving
// size (spec.md §4.1: "setting status preserves size").
func (a *Allocator) setStatus(word int, allocated bool) error {
	old, err := a.heap.ReadWord(word)
	if err != nil {
		return err
	}

	return a.heap.WriteWord(word, encodeTag(tagSize(old), allocated))
}

// writeBlockTags writes the header and footer of a size-sizeWords block
// starting at header, both carrying the same (sizeWords, allocated)
// encoding (spec.md §4.1's "combined write"). It rejects, without
// mutating memory, a size that is odd, too small, or whose footer would
// fall outside the physically backed region.
func (a *Allocator) writeBlockTags(header, sizeWords int, allocated bool) error {
	if sizeWords < minBlockWords || sizeWords%2 != 0 {
		return &ErrInvalid{"block size must be even and >= 4 words", sizeWords}
	}

	footer := header + sizeWords - 1
	if header <= a.prologue || footer >= a.heap.WordCount() {
		return &ErrInvalid{"block would fall outside the managed region", header}
	}

	tag := encodeTag(sizeWords, allocated)
	if err := a.heap.WriteWord(header, tag); err != nil {
		return err
	}

	return a.heap.WriteWord(footer, tag)
}
