// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

// Free releases the block p refers to (spec.md §4.7). Free(Null) is a
// no-op. Free logs and otherwise does nothing if p does not refer to a
// currently allocated block; it does not panic, since a double free is a
// caller bug this package can detect and report rather than one that must
// crash the process.
func (a *Allocator) Free(p Ptr) {
	if p == Null {
		return
	}

	header := headerOfPtr(p)
	if !a.isValidHeader(header) {
		a.logf("walloc: Free: %v not a valid block", p)
		return
	}

	tag, err := a.readTag(header)
	if err != nil {
		a.logf("walloc: Free: %v", err)
		return
	}

	if !tagAllocated(tag) {
		a.logf("walloc: Free: double free of %v", p)
		return
	}

	if err := a.free(header, tagSize(tag)); err != nil {
		a.logf("walloc: Free: %v", err)
	}
}

// free implements spec.md §4.7: coalesce with a free right neighbor, then
// with a free left neighbor, then reintegrate the (possibly now larger)
// free block.
func (a *Allocator) free(header, size int) error {
	if a.opts.Mode == ModeExplicit {
		next := nextHeaderOf(header, size)
		if next < a.currentHeap {
			tag, err := a.readTag(next)
			if err != nil {
				return err
			}
			if !tagAllocated(tag) {
				nsz := tagSize(tag)
				if err := a.removeFree(next, nsz); err != nil {
					return err
				}
				size += nsz
			}
		}

		if header > a.prologue+1 {
			footer := prevFooterOf(header)
			tag, err := a.readTag(footer)
			if err != nil {
				return err
			}
			if !tagAllocated(tag) {
				psz := tagSize(tag)
				prevHeader := footer - psz + 1
				if err := a.removeFree(prevHeader, psz); err != nil {
					return err
				}
				header = prevHeader
				size += psz
			}
		}
	} else {
		// Implicit-list modes have no index to consult, so coalescing
		// just merges adjacent free tags directly; there is nothing to
		// unlink (spec.md §4.7, implicit variant).
		next := nextHeaderOf(header, size)
		if next < a.currentHeap {
			tag, err := a.readTag(next)
			if err != nil {
				return err
			}
			if !tagAllocated(tag) {
				size += tagSize(tag)
			}
		}

		if header > a.prologue+1 {
			footer := prevFooterOf(header)
			tag, err := a.readTag(footer)
			if err != nil {
				return err
			}
			if !tagAllocated(tag) {
				psz := tagSize(tag)
				header = footer - psz + 1
				size += psz
			}
		}
	}

	if err := a.writeBlockTags(header, size, false); err != nil {
		return err
	}

	return a.reintegrateFree(header, size)
}
