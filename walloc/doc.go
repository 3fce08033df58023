// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package walloc implements a boundary-tag dynamic memory allocator over a
simulated, monotonically growing heap (see package memheap).

Managed region

The region handed to an Allocator is a linear sequence of 4-byte words. The
first word is the prologue: in explicit-list mode it holds the word offset
of the head of the free list, or 0 when the list is empty; in implicit-list
mode it is unused and left at 0. Every word after the prologue belongs to
exactly one block, tiled with no gaps and no overlaps, from word 1 up to
the bump frontier, the word just past the last block.

Blocks

A block is a contiguous run of at least 4 words:

	[ header ] [ payload word 0 ] ... [ payload word n-2 ] [ footer ]

header and footer are each one word and always agree; bit 0 is the status
bit (1 = allocated, 0 = free) and the remaining bits hold the block size in
words, which is always even. For an allocated block the payload is opaque
client data the allocator never reads or writes. For a free block in
explicit-list mode, the first payload word holds the offset to the next
free block's header (0 if this is the last) and the last payload word
holds the offset back to the previous free block's header (or to the
prologue, if this is the first).

Handles

Clients never see raw word indices. Allocate/Reallocate return a Ptr, an
opaque handle to a block's payload; the zero Ptr is the null pointer.

Discovery strategy

Options.Mode selects how Allocate finds a free block: linear first-fit or
best-fit scan of every block (ModeImplicitFirstFit, ModeImplicitBestFit),
or following the explicit free list (ModeExplicit). This corresponds to
the source's compile-time TRY_EXPLICIT_LIST switch, reworked as a runtime
parameter per spec.md §9.
*/
package walloc
