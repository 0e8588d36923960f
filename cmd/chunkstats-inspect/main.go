// Package main implements chunkstats-inspect, which prints the statistics
// stored in chunk index files or in a manifest database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arkilian/chunkstats/internal/chunk"
	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/internal/statistics"
)

// chunkReport is the printed form of one chunk.
type chunkReport struct {
	File       string                `json:"file,omitempty"`
	ChunkID    string                `json:"chunk_id"`
	Series     string                `json:"series"`
	DataType   string                `json:"data_type"`
	CreatedAt  time.Time             `json:"created_at"`
	Statistics statistics.Snapshot   `json:"statistics"`
	Pages      []statistics.Snapshot `json:"pages,omitempty"`
}

// seriesReport is the printed form of one series summary.
type seriesReport struct {
	Series     string              `json:"series"`
	DataType   string              `json:"data_type"`
	ChunkCount int64               `json:"chunk_count"`
	Statistics statistics.Snapshot `json:"statistics"`
}

func main() {
	var (
		format       string
		pages        bool
		manifestPath string
		parallel     int
	)
	flag.StringVar(&format, "format", "text", "Output format: text or json")
	flag.BoolVar(&pages, "pages", false, "Include page statistics")
	flag.IntVar(&parallel, "parallel", runtime.NumCPU(), "Index files decoded concurrently")
	flag.StringVar(&manifestPath, "manifest", "", "Print series summaries from this manifest database instead of index files")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chunkstats-inspect [options] FILE.csix...\n")
		fmt.Fprintf(os.Stderr, "       chunkstats-inspect -manifest manifest.db [SERIES...]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if format != "text" && format != "json" {
		log.Fatalf("unsupported format %q", format)
	}

	var err error
	if manifestPath != "" {
		err = inspectManifest(os.Stdout, manifestPath, flag.Args(), format)
	} else {
		if flag.NArg() == 0 {
			flag.Usage()
			os.Exit(2)
		}
		err = inspectFiles(os.Stdout, flag.Args(), format, pages, parallel)
	}
	if err != nil {
		log.Fatalf("inspect: %v", err)
	}
}

func inspectFiles(w io.Writer, paths []string, format string, withPages bool, parallel int) error {
	decoded, err := readIndexFiles(context.Background(), paths, parallel)
	if err != nil {
		return err
	}

	var reports []chunkReport
	for i, path := range paths {
		for _, m := range decoded[i] {
			r := chunkReport{
				File:       path,
				ChunkID:    m.ID,
				Series:     m.Series,
				DataType:   m.DataType.String(),
				CreatedAt:  m.CreatedAt,
				Statistics: statistics.TakeSnapshot(m.Statistics),
			}
			if withPages {
				for _, p := range m.Pages {
					r.Pages = append(r.Pages, statistics.TakeSnapshot(p))
				}
			}
			reports = append(reports, r)
		}
	}

	if format == "json" {
		return writeJSON(w, reports)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range reports {
		fmt.Fprintf(tw, "chunk %s\tseries=%s\ttype=%s\tfile=%s\n", r.ChunkID, r.Series, r.DataType, r.File)
		writeSnapshot(tw, "  ", r.Statistics)
		for i, p := range r.Pages {
			fmt.Fprintf(tw, "  page %d\n", i)
			writeSnapshot(tw, "    ", p)
		}
	}
	return tw.Flush()
}

// readIndexFiles decodes paths with at most parallel files in flight.
// Results keep the order of paths; the first failure is returned.
func readIndexFiles(ctx context.Context, paths []string, parallel int) ([][]*chunk.Metadata, error) {
	if parallel < 1 {
		parallel = 1
	}
	sem := semaphore.NewWeighted(int64(parallel))
	out := make([][]*chunk.Metadata, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	for i, path := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			break
		}
		wg.Add(1)
		go func(i int, path string) {
			defer sem.Release(1)
			defer wg.Done()
			out[i], errs[i] = chunk.ReadIndexFile(path)
		}(i, path)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	return out, nil
}

func inspectManifest(w io.Writer, path string, series []string, format string) error {
	catalog, err := manifest.OpenReader(path)
	if err != nil {
		return err
	}
	defer catalog.Close()

	ctx := context.Background()
	var summaries []*manifest.SeriesSummary
	if len(series) == 0 {
		summaries, err = catalog.ListSeries(ctx)
		if err != nil {
			return err
		}
	} else {
		found, err := catalog.SeriesSummaries(ctx, series)
		if err != nil {
			return err
		}
		for _, name := range series {
			if s, ok := found[name]; ok {
				summaries = append(summaries, s)
			} else {
				log.Printf("inspect: series %s not found", name)
			}
		}
	}

	reports := make([]seriesReport, len(summaries))
	for i, s := range summaries {
		reports[i] = seriesReport{
			Series:     s.Series,
			DataType:   s.DataType.String(),
			ChunkCount: s.ChunkCount,
			Statistics: statistics.TakeSnapshot(s.Statistics),
		}
	}

	if format == "json" {
		return writeJSON(w, reports)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range reports {
		fmt.Fprintf(tw, "series %s\ttype=%s\tchunks=%d\n", r.Series, r.DataType, r.ChunkCount)
		writeSnapshot(tw, "  ", r.Statistics)
	}
	return tw.Flush()
}

func writeSnapshot(w io.Writer, indent string, s statistics.Snapshot) {
	fmt.Fprintf(w, "%scount\t%d\n", indent, s.Count)
	if s.Count == 0 {
		return
	}
	fmt.Fprintf(w, "%stime\t[%d, %d]\n", indent, s.StartTime, s.EndTime)

	m := s.Map()
	for _, key := range []string{"first", "last", "min", "max", "sum", "bottom_timestamp", "top_timestamp"} {
		if v, ok := m[key]; ok {
			fmt.Fprintf(w, "%s%s\t%v\n", indent, strings.ReplaceAll(key, "_", " "), v)
		}
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
