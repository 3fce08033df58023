// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package snapshot persists a memheap.Heap's raw byte image across process
// runs so a cmd/walloc-trace replay can be resumed or inspected offline.
// It is adapted from the teacher's Filer abstraction (lldb/filer.go,
// lldb/osfiler.go, lldb/memfiler.go, lldb/simplefilefiler.go): the same
// ReadAt/WriteAt/Truncate/Size shape, with the write-ahead-log transaction
// nesting (BeginUpdate/EndUpdate/Rollback) dropped, since a single heap
// snapshot has no concurrent writers and no partial-update recovery to
// protect (spec.md §5 excludes both from scope).
package snapshot

import (
	"fmt"
	"io"
	"os"

	"github.com/cznic/fileutil"
	"github.com/cznic/mathutil"
)

// A Store is a []byte-like model of persistent storage for a heap image.
// It is not safe for concurrent use.
type Store interface {
	io.Closer
	Name() string
	ReadAt(b []byte, off int64) (n int, err error)
	WriteAt(b []byte, off int64) (n int, err error)
	Size() int64
	Truncate(size int64) error

	// PunchHole deallocates the backing storage for [off, off+size)
	// without changing Size, matching the teacher's Filer.PunchHole: a
	// later read of that range may return anything, not necessarily
	// zero, so callers may only punch a range they will never read
	// again.
	PunchHole(off, size int64) error
}

// FileStore is a Store backed by an *os.File, adapted from the teacher's
// OSFiler and SimpleFileFiler.
type FileStore struct {
	f    *os.File
	name string
}

// NewFileStore returns a Store backed by f. name is any string; it is used
// only by Name.
func NewFileStore(f *os.File, name string) *FileStore {
	return &FileStore{f: f, name: name}
}

func (s *FileStore) Name() string { return s.name }

func (s *FileStore) Close() error { return s.f.Close() }

func (s *FileStore) ReadAt(b []byte, off int64) (int, error) { return s.f.ReadAt(b, off) }

func (s *FileStore) WriteAt(b []byte, off int64) (int, error) { return s.f.WriteAt(b, off) }

// PunchHole deallocates the backing disk blocks for the byte range
// [off, off+size) without changing the file's apparent size
// (lldb/simplefilefiler.go's PunchHole, same signature). Like the
// teacher's Filer.PunchHole, it makes no promise about what a later read
// of that range returns — callers may only punch a range they will never
// read again.
func (s *FileStore) PunchHole(off, size int64) error {
	return fileutil.PunchHole(s.f, off, size)
}

// Truncate shrinks or grows the file to size. When shrinking, the bytes
// past size are punched first as a best-effort hint to reclaim their
// disk blocks before they become unreachable; a punch failure (the
// underlying filesystem may not support it at all) is not fatal, since
// the Truncate that follows drops the range regardless.
func (s *FileStore) Truncate(size int64) error {
	if old := s.Size(); size < old {
		_ = s.PunchHole(size, old-size)
	}

	return s.f.Truncate(size)
}

func (s *FileStore) Size() int64 {
	fi, err := s.f.Stat()
	if err != nil {
		return 0
	}
	return fi.Size()
}

const (
	pgBits = 16
	pgSize = 1 << pgBits
	pgMask = pgSize - 1
)

var zeroPage [pgSize]byte

// MemStore is an in-memory Store, adapted from the teacher's MemFiler: a
// sparse map of fixed-size pages rather than one contiguous slice, so that
// punching a large all-zero run (as Truncate(0) followed by a sparse
// rewrite does) reclaims memory instead of merely zeroing it. Used by
// this package's tests; cmd/walloc-trace persists only through FileStore.
type MemStore struct {
	pages map[int64]*[pgSize]byte
	size  int64
	name  string
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{pages: map[int64]*[pgSize]byte{}}
}

func (s *MemStore) Name() string {
	if s.name == "" {
		return fmt.Sprintf("%p.memstore", s)
	}
	return s.name
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) Size() int64 { return s.size }

func (s *MemStore) ReadAt(b []byte, off int64) (n int, err error) {
	avail := s.size - off
	if avail <= 0 {
		return 0, io.EOF
	}

	pgI := off >> pgBits
	pgO := int(off & pgMask)
	rem := len(b)
	if int64(rem) >= avail {
		rem = int(avail)
		err = io.EOF
	}

	for rem != 0 {
		pg := s.pages[pgI]
		if pg == nil {
			pg = &zeroPage
		}

		nc := copy(b[:mathutil.Min(rem, pgSize-pgO)], pg[pgO:])
		pgI++
		pgO = 0
		rem -= nc
		n += nc
		b = b[nc:]
	}

	return n, err
}

func (s *MemStore) WriteAt(b []byte, off int64) (n int, err error) {
	pgI := off >> pgBits
	pgO := int(off & pgMask)
	n = len(b)
	rem := n

	for rem != 0 {
		chunk := mathutil.Min(rem, pgSize-pgO)
		if pgO == 0 && chunk == pgSize && allZero(b[:pgSize]) {
			delete(s.pages, pgI)
		} else {
			pg := s.pages[pgI]
			if pg == nil {
				pg = new([pgSize]byte)
				s.pages[pgI] = pg
			}
			copy(pg[pgO:], b[:chunk])
		}

		pgI++
		pgO = 0
		rem -= chunk
		b = b[chunk:]
	}

	if end := off + int64(n); end > s.size {
		s.size = end
	}

	return n, nil
}

// PunchHole deletes the page map entries fully covered by
// [off, off+size), adapted directly from MemFiler.PunchHole's own
// page-rounding arithmetic.
func (s *MemStore) PunchHole(off, size int64) error {
	if off < 0 {
		return fmt.Errorf("snapshot: PunchHole: negative off %d", off)
	}
	if size < 0 || off+size > s.size {
		return fmt.Errorf("snapshot: PunchHole: size %d out of range", size)
	}

	first := off >> pgBits
	if off&pgMask != 0 {
		first++
	}
	off += size - 1
	last := off >> pgBits
	if off&pgMask != pgMask {
		last--
	}
	if limit := s.size >> pgBits; last > limit {
		last = limit
	}
	for pg := first; pg <= last; pg++ {
		delete(s.pages, pg)
	}

	return nil
}

func (s *MemStore) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("snapshot: Truncate: negative size %d", size)
	}

	if size == 0 {
		s.pages = map[int64]*[pgSize]byte{}
		s.size = 0
		return nil
	}

	first := size >> pgBits
	if size&pgMask != 0 {
		first++
	}
	last := s.size >> pgBits
	if s.size&pgMask != 0 {
		last++
	}
	for pg := first; pg < last; pg++ {
		delete(s.pages, pg)
	}

	s.size = size
	return nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
