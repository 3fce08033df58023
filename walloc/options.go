// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package walloc

import "log"

// Mode selects the free-block discovery and free-list maintenance
// strategy an Allocator uses. It replaces the source's compile-time
// TRY_EXPLICIT_LIST switch (spec.md §6, §9) with a runtime parameter.
type Mode int

const (
	// ModeImplicitFirstFit walks every block in address order and returns
	// the first free block large enough to satisfy a request.
	ModeImplicitFirstFit Mode = iota

	// ModeImplicitBestFit walks every block in address order and returns
	// the smallest free block large enough to satisfy a request,
	// exiting early on an exact match.
	ModeImplicitBestFit

	// ModeExplicit maintains a doubly linked list of free blocks,
	// threaded through their payload, and searches it instead of the
	// whole region.
	ModeExplicit
)

func (m Mode) String() string {
	switch m {
	case ModeImplicitFirstFit:
		return "implicit-first-fit"
	case ModeImplicitBestFit:
		return "implicit-best-fit"
	case ModeExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// Options amends the behavior of a new Allocator. It is modeled on the
// teacher repo's dbm.Options: a flat struct of typed constants passed
// once, at construction, rather than a chain of functional options.
type Options struct {
	// Mode selects the discovery/free-list strategy. The zero value is
	// ModeImplicitFirstFit.
	Mode Mode

	// Logger receives diagnostics for rejected or failed calls: invalid
	// and double frees, invalid Reallocate handles, negative Allocate
	// sizes, heap growth failures (out of memory), and corruption
	// detected while Allocate, Free or Reallocate run. Check returns
	// corruption as an error and does not log it. A nil Logger discards
	// them. It is never used on the allocate/free/realloc happy path.
	Logger *log.Logger
}

func (o Options) logf(format string, args ...interface{}) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}
