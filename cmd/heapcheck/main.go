// Command heapcheck replays a trace file against a real Allocator and
// reports whether the heap stayed internally consistent.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/zrsmith92/segalloc/internal/allocator"
)

func main() {
	var (
		tracePath   string
		chunkSize   int
		reserveSize int
		verbose     bool
	)

	flag.StringVar(&tracePath, "trace", "", "path to a trace file (required)")
	flag.IntVar(&chunkSize, "chunk-size", 16*1024, "region growth chunk size in bytes")
	flag.IntVar(&reserveSize, "reserve-size", 256*1024*1024, "reserved address space in bytes")
	flag.BoolVar(&verbose, "v", false, "print each trace line as it executes")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -trace FILE [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Replays an allocator trace and runs a heap consistency check.\n\n")
		fmt.Fprintf(os.Stderr, "Trace line formats:\n")
		fmt.Fprintf(os.Stderr, "  a <id> <bytes>   acquire <bytes>, remembering the result as <id>\n")
		fmt.Fprintf(os.Stderr, "  r <id>           release the block remembered as <id>\n")
		fmt.Fprintf(os.Stderr, "  s <id> <bytes>   resize the block remembered as <id> to <bytes>\n")
		fmt.Fprintf(os.Stderr, "  # ...            comment, ignored\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if tracePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(tracePath, chunkSize, reserveSize, verbose); err != nil {
		fmt.Fprintln(os.Stderr, "heapcheck:", err)
		os.Exit(1)
	}
}

func run(tracePath string, chunkSize, reserveSize int, verbose bool) error {
	f, err := os.Open(tracePath)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	a, err := allocator.New(
		allocator.WithChunkSize(chunkSize),
		allocator.WithReserveSize(reserveSize),
		allocator.WithStats(true),
	)
	if err != nil {
		return fmt.Errorf("construct allocator: %w", err)
	}

	live := map[string]unsafe.Pointer{}

	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if verbose {
			fmt.Println(line)
		}

		if err := execLine(a, live, line); err != nil {
			return fmt.Errorf("line %d: %q: %w", lineNo, line, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read trace: %w", err)
	}

	stats, err := a.Verify()
	if err != nil {
		return fmt.Errorf("heap corruption found: %w", err)
	}

	fmt.Printf("OK: %d blocks (%d free), %d allocated bytes, %d free bytes, region size %d\n",
		stats.BlockCount, stats.FreeBlockCount, stats.AllocatedBytes, stats.FreeBytes, stats.RegionSize)

	return nil
}

func execLine(a *allocator.Allocator, live map[string]unsafe.Pointer, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("expected at least an op and an id")
	}

	op, id := fields[0], fields[1]

	switch op {
	case "a":
		if len(fields) != 3 {
			return fmt.Errorf("acquire needs <id> <bytes>")
		}

		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("bad byte count: %w", err)
		}

		p := a.Acquire(uintptr(n))
		if p == nil {
			return fmt.Errorf("acquire(%d) returned nil", n)
		}

		live[id] = p

		return nil

	case "r":
		p, ok := live[id]
		if !ok {
			return fmt.Errorf("release of unknown id %q", id)
		}

		a.Release(p)
		delete(live, id)

		return nil

	case "s":
		if len(fields) != 3 {
			return fmt.Errorf("resize needs <id> <bytes>")
		}

		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("bad byte count: %w", err)
		}

		p, ok := live[id]
		if !ok {
			return fmt.Errorf("resize of unknown id %q", id)
		}

		newP := a.Resize(p, uintptr(n))
		if newP == nil && n != 0 {
			return fmt.Errorf("resize(%d) returned nil", n)
		}

		if n == 0 {
			delete(live, id)
		} else {
			live[id] = newP
		}

		return nil

	default:
		return fmt.Errorf("unknown op %q", op)
	}
}
