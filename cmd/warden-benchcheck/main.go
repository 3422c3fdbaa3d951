// Command warden-benchcheck compares two `go test -bench` outputs and fails
// when a tracked benchmark regresses past a threshold.
//
//	go test -run '^$' -bench . -count 6 . > new.txt
//	warden-benchcheck -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
)

const defaultThreshold = 0.30

// defaultTracked covers the request-path operations of the engine.
var defaultTracked = trackList{
	"BenchmarkValidateAccess": {"ns/op", "allocs/op"},
	"BenchmarkRefresh":        {"ns/op"},
	"BenchmarkCheckRate":      {"ns/op"},
	"BenchmarkIssueForLogin":  {"ns/op"},
}

// trackList maps a benchmark name to the units compared for it.
type trackList map[string][]string

// String implements flag.Value.
func (t trackList) String() string {
	names := make([]string, 0, len(t))
	for name, units := range t {
		names = append(names, name+"="+strings.Join(units, ","))
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

// Set parses "BenchmarkName=unit,unit". Repeating the flag adds entries.
func (t trackList) Set(v string) error {
	name, units, ok := strings.Cut(v, "=")
	if !ok || name == "" || units == "" {
		return fmt.Errorf("want Name=unit[,unit], got %q", v)
	}
	t[name] = strings.Split(units, ",")
	return nil
}

type sampleSet map[string]map[string][]float64

type comparison struct {
	Benchmark string
	Unit      string
	Baseline  float64
	Candidate float64
	Delta     float64
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)
	tracked := trackList{}

	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.Var(tracked, "track", "benchmark to compare as Name=unit[,unit]; repeatable, replaces the defaults")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}
	if len(tracked) == 0 {
		tracked = defaultTracked
	}

	baseline, err := parseBenchmarkFile(baselinePath, tracked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseBenchmarkFile(candidatePath, tracked)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	results, failures := compare(baseline, candidate, tracked, threshold)

	fmt.Println("benchmark unit baseline candidate delta")
	for _, r := range results {
		fmt.Printf("%s %s %.3f %.3f %+0.2f%%\n", r.Benchmark, r.Unit, r.Baseline, r.Candidate, r.Delta*100)
	}

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, failure := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", failure)
		}
		os.Exit(1)
	}
}

// compare reports medians per tracked benchmark and unit in a stable order.
func compare(baseline, candidate sampleSet, tracked trackList, threshold float64) ([]comparison, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	slices.Sort(names)

	var (
		results  []comparison
		failures []string
	)
	for _, name := range names {
		for _, unit := range tracked[name] {
			baseSamples := baseline[name][unit]
			candidateSamples := candidate[name][unit]
			if len(baseSamples) == 0 || len(candidateSamples) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}

			baseMedian := median(baseSamples)
			candidateMedian := median(candidateSamples)
			if baseMedian <= 0 {
				// 0 allocs/op stays acceptable only while the candidate is also 0.
				if candidateMedian > 0 {
					failures = append(failures, fmt.Sprintf("%s %s rose from 0 to %.3f", name, unit, candidateMedian))
				}
				results = append(results, comparison{Benchmark: name, Unit: unit, Baseline: baseMedian, Candidate: candidateMedian})
				continue
			}

			delta := (candidateMedian - baseMedian) / baseMedian
			results = append(results, comparison{Benchmark: name, Unit: unit, Baseline: baseMedian, Candidate: candidateMedian, Delta: delta})
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, delta*100, threshold*100))
			}
		}
	}
	return results, failures
}

func parseBenchmarkFile(path string, tracked trackList) (sampleSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseBenchmarks(file, tracked)
}

func parseBenchmarks(r io.Reader, tracked trackList) (sampleSet, error) {
	samples := sampleSet{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := normalizeBenchmarkName(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}

		if _, ok := samples[name]; !ok {
			samples[name] = map[string][]float64{}
		}

		// fields[1] is the iteration count; value/unit pairs follow.
		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			unit := fields[i+1]
			samples[name][unit] = append(samples[name][unit], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.New("no tracked benchmarks found")
	}

	return samples, nil
}

// normalizeBenchmarkName strips the -GOMAXPROCS suffix.
func normalizeBenchmarkName(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	copied := slices.Clone(values)
	slices.Sort(copied)

	mid := len(copied) / 2
	if len(copied)%2 == 1 {
		return copied[mid]
	}
	return (copied[mid-1] + copied[mid]) / 2
}
