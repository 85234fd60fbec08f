// Command ledger-audit scans gzipped coupon-code export files and reports
// codes that appear in more than one export. Coupon codes are globally
// unique, so any cross-file duplicate points at a settlement bug or a
// corrupted export.
//
// The audit runs in two passes so arbitrarily large exports fit in memory:
// pass 1 builds a bloom filter per file, pass 2 collects candidate codes
// that hit another file's filter, and the candidates are then re-counted
// exactly to discard bloom false positives.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 5_000_000

	codePrefix = "DP"
	minCodeLen = 10
	maxCodeLen = 24
)

// fileResult holds candidate codes found in a single file during pass 2.
// The mask records which files a candidate was seen in.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var exportGlob string

	flag.StringVar(&exportGlob, "exports", "exports/codes-*.gz", "glob of gzipped coupon code export files")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files, err := filepath.Glob(exportGlob)
	if err != nil {
		slog.Error("bad exports glob", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if len(files) < 2 {
		slog.Error("need at least two export files to audit", slog.Int("found", len(files)))
		os.Exit(1)
	}
	sort.Strings(files)

	duplicates, err := run(ctx, files)
	if err != nil {
		slog.Error("ledger audit failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if len(duplicates) > 0 {
		slog.Error("duplicate coupon codes found", slog.Int("count", len(duplicates)))
		for _, code := range duplicates {
			fmt.Println(code)
		}
		os.Exit(2)
	}

	slog.Info("ledger audit passed, no duplicates")
}

func run(ctx context.Context, files []string) ([]string, error) {
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding candidate duplicates")

	candidates, err := findCandidates(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find candidates")
	}

	slog.Info("candidates found", slog.Int("count", len(candidates)))
	if len(candidates) == 0 {
		return nil, nil
	}

	slog.Info("pass 3: verifying candidates exactly")

	duplicates, err := verifyCandidates(ctx, files, candidates)
	if err != nil {
		return nil, errors.Wrap(err, "verify candidates")
	}

	sort.Strings(duplicates)
	return duplicates, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count, malformed uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if !validCode(code) {
				malformed++
				return
			}
			filter.AddString(code)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("codes", count),
			slog.Uint64("malformed", malformed),
		)

		filters[idx] = filter
		return nil
	}
}

// findCandidates scans each file and collects codes that hit another file's
// bloom filter.
func findCandidates(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(gctx, i, f, filters, results))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files; a real cross-file duplicate was seen in
	// at least two files.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	candidates := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			candidates[code] = struct{}{}
		}
	}
	return candidates, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)

		if err := streamGzFile(ctx, path, func(code string) {
			if !validCode(code) {
				return
			}
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete", slog.Int("file", idx+1), slog.Int("candidates", len(candidates)))

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// verifyCandidates re-counts candidate codes exactly, discarding bloom false
// positives. A code is a confirmed duplicate when it occurs in two or more
// files for real.
func verifyCandidates(ctx context.Context, files []string, candidates map[string]struct{}) ([]string, error) {
	seenIn := make(map[string]int, len(candidates))

	for idx, path := range files {
		inThisFile := make(map[string]struct{})
		if err := streamGzFile(ctx, path, func(code string) {
			if _, ok := candidates[code]; ok {
				inThisFile[code] = struct{}{}
			}
		}); err != nil {
			return nil, errors.Wrapf(err, "verify file %d", idx+1)
		}
		for code := range inThisFile {
			seenIn[code]++
		}
	}

	var duplicates []string
	for code, n := range seenIn {
		if n >= 2 {
			duplicates = append(duplicates, code)
		}
	}
	return duplicates, nil
}

// validCode checks the coupon code shape: DP prefix, upper-case base36 body,
// sane length.
func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	if !strings.HasPrefix(code, codePrefix) {
		return false
	}
	for i := len(codePrefix); i < len(code); i++ {
		c := code[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
