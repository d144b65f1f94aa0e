// Package testutil provides shared test infrastructure for the network
// simulator: the golden scenario dataset and float assertion helpers.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/scenarios.json.
type GoldenDataset struct {
	Scenarios []GoldenScenario `json:"scenarios"`
}

// GoldenIssue is one request issued by a client at a fixed virtual time.
type GoldenIssue struct {
	Client int     `json:"client"`
	At     float64 `json:"at"`
}

// GoldenScenario is a deterministic run: constant service times per stage and
// requests issued at fixed times, one per client.
type GoldenScenario struct {
	Name     string         `json:"name"`
	Clients  int            `json:"clients"`
	Threads  int            `json:"threads"`
	Stage1   float64        `json:"stage1"`
	Stage2   float64        `json:"stage2"`
	Stage3   float64        `json:"stage3"`
	Issues   []GoldenIssue  `json:"issues"`
	Expected GoldenExpected `json:"expected"`
}

// GoldenExpected holds the emitted statistics of a scenario, in emission order.
type GoldenExpected struct {
	CompletionTimes    []float64 `json:"completion_times"`
	TotalResponseTimes []float64 `json:"total_response_times"`
	Stage1QueueTimes   []float64 `json:"stage1_queue_times"`
	Stage1QueueValues  []float64 `json:"stage1_queue_values"`
	Stage2Partials     []float64 `json:"stage2_partials"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "scenarios.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertFloat64SliceEqual compares two slices element-wise with relative tolerance.
func AssertFloat64SliceEqual(t *testing.T, name string, want, got []float64, relTol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Errorf("%s: got %d values %v, want %d values %v", name, len(got), got, len(want), want)
		return
	}
	for i := range want {
		AssertFloat64Equal(t, name, want[i], got[i], relTol)
	}
}
