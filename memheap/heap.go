// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memheap simulates the narrow, sbrk-style "memory library" a
// boundary-tag allocator is built on top of: a single, monotonically
// growing region of bytes, grown in caller-chosen increments and never
// shrunk or paged back to an owner. It plays the role the teacher
// package's Filer/MemFiler pair plays for lldb, generalized from a
// byte-addressed, page-mapped file abstraction down to a flat,
// word-addressed in-process buffer, since this allocator persists nothing
// and has no file semantics to preserve.
package memheap

import (
	"fmt"

	"github.com/cznic/mathutil"
)

// WordSize is the fixed width, in bytes, of a word in the managed region.
const WordSize = 4

// ErrOOM is returned by Extend when growing the region would exceed the
// Heap's configured limit, simulating the external grower "refusing" a
// request (spec.md §4.3, §7).
type ErrOOM struct {
	Requested int
	Have      int64
	Limit     int64
}

func (e *ErrOOM) Error() string {
	return fmt.Sprintf("memheap: cannot grow by %d bytes: have %d of %d limit", e.Requested, e.Have, e.Limit)
}

// A Heap is a []byte-like growable region. It is not safe for concurrent
// use, matching the single-threaded contract of the allocator built on top
// of it (spec.md §5).
type Heap struct {
	buf   []byte
	limit int64 // 0 means unlimited
}

// New returns an empty Heap. A non-zero limit caps the total size Extend
// will grow the region to, letting callers exercise the allocator's
// out-of-memory path (spec.md §7) without actually exhausting process
// memory.
func New(limit int64) *Heap {
	return &Heap{limit: limit}
}

// Reset empties the region. Init (spec.md §6) uses this to claim a fresh
// initial region on every call, matching the C source's one-shot mm_init.
func (h *Heap) Reset() {
	h.buf = h.buf[:0]
}

// Extend grows the region by exactly n bytes, zero-filled. It fails
// without modifying the region if doing so would exceed the configured
// limit.
func (h *Heap) Extend(n int) error {
	if n <= 0 {
		return fmt.Errorf("memheap: Extend size must be positive, got %d", n)
	}

	want := int64(len(h.buf)) + int64(n)
	if h.limit != 0 && want > h.limit {
		return &ErrOOM{Requested: n, Have: int64(len(h.buf)), Limit: h.limit}
	}

	h.buf = append(h.buf, make([]byte, n)...)
	return nil
}

// Size returns the total number of bytes currently managed (mem_heapsize).
func (h *Heap) Size() int64 { return int64(len(h.buf)) }

// WordCount returns Size()/WordSize.
func (h *Heap) WordCount() int { return len(h.buf) / WordSize }

// Hi returns the offset of the last managed byte, or -1 if the region is
// empty (mem_heap_hi).
func (h *Heap) Hi() int64 { return int64(len(h.buf)) - 1 }

func (h *Heap) wordOff(word int) (int, error) {
	off := word * WordSize
	if word < 0 || off+WordSize > len(h.buf) {
		return 0, fmt.Errorf("memheap: word %d out of bounds (have %d words)", word, h.WordCount())
	}
	return off, nil
}

// ReadWord reads the big-endian uint32 at word index 'word'.
func (h *Heap) ReadWord(word int) (uint32, error) {
	off, err := h.wordOff(word)
	if err != nil {
		return 0, err
	}

	b := h.buf[off : off+WordSize]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// WriteWord writes v as a big-endian uint32 at word index 'word'.
func (h *Heap) WriteWord(word int, v uint32) error {
	off, err := h.wordOff(word)
	if err != nil {
		return err
	}

	b := h.buf[off : off+WordSize]
	b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	return nil
}

// ReadAt copies min(len(p), available) bytes starting at byte offset off
// into p, returning the number of bytes copied. It never returns an error;
// reading past the end of the region simply yields fewer bytes, mirroring
// the clipped-read style of the teacher's MemFiler.ReadAt.
func (h *Heap) ReadAt(p []byte, off int64) int {
	avail := int64(len(h.buf)) - off
	if avail <= 0 {
		return 0
	}

	n := mathutil.Min(len(p), int(avail))
	copy(p[:n], h.buf[off:])
	return n
}

// WriteAt copies p into the region starting at byte offset off. off+len(p)
// must not exceed Size().
func (h *Heap) WriteAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(h.buf)) {
		return fmt.Errorf("memheap: WriteAt(off=%d, len=%d) out of bounds (size %d)", off, len(p), len(h.buf))
	}

	copy(h.buf[off:], p)
	return nil
}

// Bytes returns the raw backing region. Callers must not retain the slice
// across a call to Extend or Reset, which may reallocate it.
func (h *Heap) Bytes() []byte { return h.buf }

// LoadBytes discards the current region and replaces it with a copy of b,
// subject to the same limit Extend enforces. It is used to restore a Heap
// from a previously saved snapshot (see the snapshot package).
func (h *Heap) LoadBytes(b []byte) error {
	h.Reset()
	if len(b) == 0 {
		return nil
	}

	if err := h.Extend(len(b)); err != nil {
		return err
	}

	copy(h.buf, b)
	return nil
}
