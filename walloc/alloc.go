// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

import (
	"github.com/wordheap/walloc/memheap"
)

// initialHeapBytes is the size of the region Init claims before any
// allocation is made (spec.md §6: "Allocates initial 1<<8 bytes").
const initialHeapBytes = 1 << 8

// growthBytes is the size of each heap extension requested when no free
// block satisfies a request (spec.md §4.6 step 3).
const growthBytes = 1 << 12

// An Allocator manages space within a memheap.Heap using boundary-tag
// blocks. The zero value is not usable; construct one with New.
type Allocator struct {
	heap *memheap.Heap
	opts Options

	prologue    int // always 0: the word index of the free-list-head slot
	currentHeap int // word index one past the last tiled block
}

// New returns an Allocator over heap. Call Init before any other method.
func New(heap *memheap.Heap, opts Options) *Allocator {
	return &Allocator{heap: heap, opts: opts}
}

// Init resets the Allocator's state and claims a fresh initial region,
// discarding anything previously stored in the backing Heap (spec.md §6).
func (a *Allocator) Init() error {
	a.heap.Reset()
	if err := a.heap.Extend(initialHeapBytes); err != nil {
		return err
	}

	a.prologue = 0
	if err := a.heap.WriteWord(a.prologue, 0); err != nil {
		return err
	}

	a.currentHeap = a.prologue + 1
	return nil
}

// Recover attaches the Allocator to a Heap that already holds a managed
// region — typically one just restored from a snapshot package Load — by
// walking blocks forward from the prologue to relocate the bump frontier,
// which (unlike the free-list head) is never stored in the region itself.
// The walk stops at the first word it cannot validate as a block header,
// which must be the zero-filled word just past the last real block: Extend
// always zero-fills new space, and a zero word decodes to an invalid
// size-0 tag, so this is unambiguous as long as the Heap was only ever
// grown by this package.
func (a *Allocator) Recover() error {
	a.prologue = 0

	cur := a.prologue + 1
	for {
		tag, err := a.readTag(cur)
		if err != nil {
			break
		}

		size := tagSize(tag)
		if size < minBlockWords || size%2 != 0 {
			break
		}

		footer := footerOf(cur, size)
		ftag, err := a.readTag(footer)
		if err != nil || ftag != tag {
			break
		}

		cur += size
	}

	a.currentHeap = cur
	_, err := a.Check()
	return err
}

func (a *Allocator) logf(format string, args ...interface{}) {
	a.opts.logf(format, args...)
}

// Payload returns a byte slice view of p's payload: all (block size - 2)
// words of its block, which is at least the byte size p was last
// allocated or reallocated with, rounded up to a multiple of 8. The slice
// aliases the backing Heap; writes through it are visible
// to later reads of the same pointer, and it must not be retained past
// the next call that may grow the heap (Allocate, Reallocate). Payload
// panics if p is Null or not a currently allocated block — callers are
// expected to only ever pass back pointers they still own, per spec.md §3
// Ownership.
func (a *Allocator) Payload(p Ptr) []byte {
	header := headerOfPtr(p)
	tag, err := a.readTag(header)
	if err != nil || !tagAllocated(tag) {
		panic(&ErrInvalid{"Payload: not a live allocation", p})
	}

	size := tagSize(tag)
	off := int64(header+1) * wordBytes
	n := int64(size-2) * wordBytes
	b := a.heap.Bytes()
	return b[off : off+n : off+n]
}

// Allocate reserves a block able to hold sizeBytes of payload and returns
// a pointer to it, or Null if no space could be found (spec.md §4.6).
func (a *Allocator) Allocate(sizeBytes int) Ptr {
	if sizeBytes < 0 {
		a.logf("walloc: Allocate: negative size %d", sizeBytes)
		return Null
	}

	header, err := a.alloc(blockWordsFor(sizeBytes))
	if err != nil {
		a.logf("walloc: Allocate: %v", err)
		return Null
	}

	if header == 0 {
		return Null
	}

	return ptrOfHeader(header)
}

// alloc implements spec.md §4.6: search, then split-or-consume, then
// (if nothing fit) extend the heap and carve from the bump frontier.
func (a *Allocator) alloc(reqWords int) (header int, err error) {
	found, size, err := a.find(reqWords)
	if err != nil {
		return 0, err
	}

	if found != 0 {
		if a.opts.Mode == ModeExplicit {
			if err := a.removeFree(found, size); err != nil {
				return 0, err
			}
		}

		leftover := size - reqWords
		if leftover < minBlockWords {
			if err := a.writeBlockTags(found, size, true); err != nil {
				return 0, err
			}
			return found, nil
		}

		if err := a.writeBlockTags(found, reqWords, true); err != nil {
			return 0, err
		}

		freeHeader := found + reqWords
		if err := a.writeBlockTags(freeHeader, leftover, false); err != nil {
			return 0, err
		}

		if err := a.reintegrateFree(freeHeader, leftover); err != nil {
			return 0, err
		}

		return found, nil
	}

	needBytes := int64(reqWords) * wordBytes
	for a.heap.Size()-int64(a.currentHeap)*wordBytes < needBytes {
		if err := a.heap.Extend(growthBytes); err != nil {
			return 0, err
		}
	}

	header = a.currentHeap
	a.currentHeap += reqWords
	if err := a.writeBlockTags(header, reqWords, true); err != nil {
		return 0, err
	}

	return header, nil
}

// reintegrateFree finishes turning a just-freed (or just-split-off) block
// of the given size back into usable space: if it abuts the bump
// frontier it is absorbed back into it (spec.md §4.7 step 4), otherwise
// it is threaded into the free list in explicit mode. The tags at header
// must already have been written as free by the caller.
func (a *Allocator) reintegrateFree(header, size int) error {
	if header+size == a.currentHeap {
		a.currentHeap = header
		return nil
	}

	if a.opts.Mode == ModeExplicit {
		return a.insertFree(header, size)
	}

	return nil
}
