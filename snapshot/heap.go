// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import "github.com/wordheap/walloc/memheap"

// Save writes h's entire byte image to s, truncating s to exactly h's
// current size first.
func Save(s Store, h *memheap.Heap) error {
	b := h.Bytes()
	if err := s.Truncate(int64(len(b))); err != nil {
		return err
	}

	if len(b) == 0 {
		return nil
	}

	_, err := s.WriteAt(b, 0)
	return err
}

// Load replaces h's region with the image stored in s.
func Load(s Store, h *memheap.Heap) error {
	size := s.Size()
	b := make([]byte, size)
	if size > 0 {
		n, err := s.ReadAt(b, 0)
		// ReadAt is permitted to pair a full read with io.EOF (the
		// io.ReaderAt contract); only a short read is a real failure.
		if n < len(b) && err != nil {
			return err
		}
	}

	return h.LoadBytes(b)
}
