// Package report formats benchmark results for the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/weiihann/simbench/harness"
)

// Generate writes one line per strategy with its elapsed microseconds,
// grouped according to tag.
func Generate(w io.Writer, results []harness.Result, tag language.Tag) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	p := message.NewPrinter(tag)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Results")

	for _, r := range results {
		fmt.Fprintf(w, "%20s: %s\n", r.Strategy+" sims", formatMicros(p, r.ElapsedMicros))
	}

	return nil
}

// GenerateTable writes a markdown table with per-call latency and the
// slowdown of each strategy relative to the fastest one.
func GenerateTable(w io.Writer, results []harness.Result, tag language.Tag) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	p := message.NewPrinter(tag)
	fastest := findFastest(results)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Strategy | Sims | Workers | Elapsed (us) "+
		"| Min | Mean | P50 | Max | Relative |")
	fmt.Fprintln(w, "|----------|------|---------|--------------"+
		"|-----|------|-----|-----|----------|")

	for _, r := range results {
		relative := 1.0
		if fastest > 0 && r.ElapsedMicros > 0 {
			relative = float64(r.ElapsedMicros) / float64(fastest)
		}

		workers := "-"
		if r.Workers > 0 {
			workers = fmt.Sprintf("%d", r.Workers)
		}

		fmt.Fprintf(w, "| %s | %d | %s | %s | %s | %s | %s | %s | %.2fx |\n",
			r.Strategy,
			r.Sims,
			workers,
			formatMicros(p, r.ElapsedMicros),
			formatMs(r.Latency.MinMicros),
			formatMs(r.Latency.MeanMicros),
			formatMs(r.Latency.P50Micros),
			formatMs(r.Latency.MaxMicros),
			relative,
		)
	}

	return nil
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

func findFastest(results []harness.Result) int64 {
	fastest := int64(math.MaxInt64)
	for _, r := range results {
		if r.ElapsedMicros > 0 && r.ElapsedMicros < fastest {
			fastest = r.ElapsedMicros
		}
	}

	if fastest == math.MaxInt64 {
		return 0
	}

	return fastest
}

func formatMicros(p *message.Printer, us int64) string {
	return p.Sprintf("%d", us)
}

func formatMs(us int64) string {
	if us == 0 {
		return "-"
	}

	ms := us / 1000
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}

	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}
