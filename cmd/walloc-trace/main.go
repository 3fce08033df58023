// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command walloc-trace replays a textual allocator operation trace and
// reports the resulting utilization and fragmentation. It is a thin
// driver in the shape of lldb/lab/1's FLT-comparison harness: it talks to
// walloc.Allocator only through its public methods.
//
// Trace format, one operation per line:
//
//	a <id> <bytes>   allocate <bytes>, remembering the result as <id>
//	f <id>           free the block remembered as <id>
//	r <id> <bytes>   reallocate the block remembered as <id> to <bytes>
//
// Blank lines and lines starting with # are ignored.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang/snappy"

	"github.com/wordheap/walloc"
	"github.com/wordheap/walloc/memheap"
	snap "github.com/wordheap/walloc/snapshot"
)

var (
	mode       = flag.String("mode", "implicit-first-fit", "discovery mode: implicit-first-fit, implicit-best-fit, explicit")
	heapLimit  = flag.Int64("limit", 0, "heap byte limit, 0 for unlimited")
	dump       = flag.String("snapshot", "", "write a snappy-compressed snapshot of the final heap to this path")
	persist    = flag.String("persist", "", "load the heap from this file before replaying and save it back after, resuming across runs")
	traceFile  = flag.String("trace", "", "trace file to replay, default stdin")
	checkEvery = flag.Bool("check", false, "run an integrity Check after every operation")
)

func parseMode(s string) (walloc.Mode, error) {
	switch s {
	case "implicit-first-fit":
		return walloc.ModeImplicitFirstFit, nil
	case "implicit-best-fit":
		return walloc.ModeImplicitBestFit, nil
	case "explicit":
		return walloc.ModeExplicit, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func main() {
	flag.Parse()

	m, err := parseMode(*mode)
	if err != nil {
		log.Fatal(err)
	}

	var in io.Reader = os.Stdin
	if *traceFile != "" {
		f, err := os.Open(*traceFile)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		in = f
	}

	logger := log.New(os.Stderr, "walloc-trace: ", 0)
	heap := memheap.New(*heapLimit)
	a := walloc.New(heap, walloc.Options{Mode: m, Logger: logger})

	var store *snap.FileStore
	if *persist != "" {
		f, err := os.OpenFile(*persist, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()

		store = snap.NewFileStore(f, *persist)
		if store.Size() > 0 {
			if err := snap.Load(store, heap); err != nil {
				log.Fatal(err)
			}
			if err := a.Recover(); err != nil {
				log.Fatal(err)
			}
		} else if err := a.Init(); err != nil {
			log.Fatal(err)
		}
	} else if err := a.Init(); err != nil {
		log.Fatal(err)
	}

	live := map[string]walloc.Ptr{}
	ops, fails := 0, 0

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		ops++

		switch fields[0] {
		case "a":
			id, size := fields[1], mustAtoi(fields[2])
			p := a.Allocate(size)
			if p == walloc.Null {
				fails++
				logger.Printf("allocate %s (%d bytes) failed", id, size)
				continue
			}
			live[id] = p
		case "f":
			id := fields[1]
			if p, ok := live[id]; ok {
				a.Free(p)
				delete(live, id)
			}
		case "r":
			id, size := fields[1], mustAtoi(fields[2])
			p, ok := live[id]
			if !ok {
				fails++
				continue
			}
			np := a.Reallocate(p, size)
			if np == walloc.Null && size != 0 {
				fails++
				logger.Printf("reallocate %s (%d bytes) failed", id, size)
				continue
			}
			if size == 0 {
				delete(live, id)
			} else {
				live[id] = np
			}
		default:
			logger.Printf("ignoring unrecognized operation %q", line)
			continue
		}

		if *checkEvery {
			if _, err := a.Check(); err != nil {
				log.Fatalf("corruption after %q: %v", line, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatal(err)
	}

	stats, err := a.Check()
	if err != nil {
		log.Fatalf("final integrity check failed: %v", err)
	}

	report(stats, ops, fails, len(live))

	if store != nil {
		if err := snap.Save(store, heap); err != nil {
			log.Fatal(err)
		}
	}

	if *dump != "" {
		if err := writeSnapshot(heap, *dump); err != nil {
			log.Fatal(err)
		}
	}
}

func report(st walloc.Stats, ops, fails, liveCount int) {
	fmt.Printf("operations:       %d (%d failed)\n", ops, fails)
	fmt.Printf("live handles:     %d\n", liveCount)
	fmt.Printf("blocks:           %d (%d allocated, %d free)\n", st.Blocks, st.AllocatedBlocks, st.FreeBlocks)

	total := st.AllocatedWords + st.FreeWords
	if total > 0 {
		util := float64(st.AllocatedWords) / float64(total) * 100
		fmt.Printf("word utilization: %.1f%%\n", util)
	}
}

// writeSnapshot dumps the heap's current byte image, snappy-compressed,
// for offline inspection. It never runs on the allocate/free/realloc
// path: compressing a live payload in place would violate the rule that
// Payload's bytes belong to the caller once returned (spec.md §3
// Ownership), so it runs only after the trace has finished, reading the
// region without modifying it and writing the compressed form to a
// separate buffer.
func writeSnapshot(h *memheap.Heap, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	compressed := snappy.Encode(nil, h.Bytes())
	_, err = f.Write(compressed)
	return err
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("bad integer %q: %v", s, err)
	}
	return n
}
