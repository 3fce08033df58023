// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

// minBlockWords is the smallest legal block size: one header word, one
// footer word, and the two payload words an explicit-mode free block
// needs for its next/prev links (spec.md §3).
const minBlockWords = 4

// Ptr is an opaque handle to the payload of an allocated block. The zero
// value, Null, never refers to a block.
type Ptr int

// Null is the null pointer: the output of a failed Allocate/Reallocate
// and of Reallocate(p, 0), and the no-op input to Free.
// Reallocate(Null, n) behaves like Allocate(n).
const Null Ptr = 0

func headerOfPtr(p Ptr) int { return int(p) - 1 }

func ptrOfHeader(header int) Ptr { return Ptr(header + 1) }

func footerOf(header, sizeWords int) int { return header + sizeWords - 1 }

func nextHeaderOf(header, sizeWords int) int { return header + sizeWords }

// prevFooterOf returns the word holding the footer of the block
// immediately preceding header, valid only when header is not the first
// block in the region (spec.md §4.2).
func prevFooterOf(header int) int { return header - 1 }

// isValidHeader reports whether header could plausibly be the header of a
// block: inside the physically backed region, with a footer that is also
// inside it and strictly after the header (spec.md §4.2). It performs no
// check of the block's status or its relationship to neighboring blocks —
// those are the caller's concern.
func (a *Allocator) isValidHeader(header int) bool {
	end := a.heap.WordCount()
	if header <= a.prologue || header >= end {
		return false
	}

	tag, err := a.readTag(header)
	if err != nil {
		return false
	}

	size := tagSize(tag)
	if size < minBlockWords || size%2 != 0 {
		return false
	}

	footer := footerOf(header, size)
	return footer > header && footer > a.prologue && footer < end
}

// blockWordsFor converts a requested payload size in bytes to a block
// size in words: 8-byte-aligned payload, plus header and footer words,
// rounded up to the 4-word minimum (spec.md §4.6).
func blockWordsFor(sizeBytes int) int {
	words := align8(sizeBytes)/wordBytes + 2
	if words < minBlockWords {
		words = minBlockWords
	}
	return words
}

const wordBytes = 4

func align8(n int) int { return (n + 7) &^ 7 }
