package sim

import (
	"errors"
	"sort"
)

// StatName identifies an emitted statistic.
type StatName string

const (
	StatQueueLengthStage1         StatName = "queueLength@stage1"
	StatQueueLengthStage2         StatName = "queueLength@stage2"
	StatPartialResponseTimeStage1 StatName = "partialResponseTime@stage1"
	StatPartialResponseTimeStage2 StatName = "partialResponseTime@stage2"
	StatTotalResponseTimeClient   StatName = "totalResponseTime@client"
)

// AllStats lists every statistic in report order.
var AllStats = []StatName{
	StatQueueLengthStage1,
	StatQueueLengthStage2,
	StatPartialResponseTimeStage1,
	StatPartialResponseTimeStage2,
	StatTotalResponseTimeClient,
}

// IsQueueLength reports whether the statistic is a piecewise-constant level
// (queue length) rather than a per-request observation.
func (n StatName) IsQueueLength() bool {
	return n == StatQueueLengthStage1 || n == StatQueueLengthStage2
}

// Sample is one emitted value. RequestID is -1 for queue-length samples.
type Sample struct {
	Replication int
	Name        StatName
	Time        float64
	Value       float64
	RequestID   int64
}

// Sink receives emitted samples. Samples arrive in non-decreasing Time order.
type Sink interface {
	Record(s Sample) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s Sample) error

func (f SinkFunc) Record(s Sample) error { return f(s) }

// MultiSink fans a sample out to every sink, stopping at the first error.
type MultiSink []Sink

func (m MultiSink) Record(s Sample) error {
	for _, sink := range m {
		if err := sink.Record(s); err != nil {
			return err
		}
	}
	return nil
}

// WarmupFilter drops samples emitted before Warmup. The last queue length
// dropped for each queue is re-emitted at Warmup, right before the first kept
// sample or by Flush, so a level held across the warm-up boundary still
// covers the start of the measured window.
type WarmupFilter struct {
	Warmup float64
	Next   Sink

	carried map[StatName]Sample
	flushed bool
}

func (f *WarmupFilter) Record(s Sample) error {
	if s.Time < f.Warmup {
		if s.Name.IsQueueLength() && !f.flushed {
			if f.carried == nil {
				f.carried = make(map[StatName]Sample)
			}
			f.carried[s.Name] = s
		}
		return nil
	}
	if err := f.Flush(); err != nil {
		return err
	}
	return f.Next.Record(s)
}

// Flush re-emits the carried queue lengths at Warmup. Only the first call
// emits anything; Record calls it before the first kept sample.
func (f *WarmupFilter) Flush() error {
	if f.flushed {
		return nil
	}
	f.flushed = true
	for _, name := range AllStats {
		s, ok := f.carried[name]
		if !ok {
			continue
		}
		s.Time = f.Warmup
		if err := f.Next.Record(s); err != nil {
			return err
		}
	}
	f.carried = nil
	return nil
}

// Series is the recorded history of one statistic.
type Series struct {
	Times  []float64
	Values []float64
	// RequestIDs holds the request of each observation; nil for queue lengths.
	RequestIDs []int64
}

func (s *Series) Len() int { return len(s.Values) }

// Collector keeps every sample in memory for the end-of-run summary and tests.
type Collector struct {
	series map[StatName]*Series
}

func NewCollector() *Collector {
	return &Collector{series: make(map[StatName]*Series)}
}

func (c *Collector) Record(s Sample) error {
	if s.Name == "" {
		return errors.New("collector: sample without a name")
	}
	ser, ok := c.series[s.Name]
	if !ok {
		ser = &Series{}
		c.series[s.Name] = ser
	}
	ser.Times = append(ser.Times, s.Time)
	ser.Values = append(ser.Values, s.Value)
	if !s.Name.IsQueueLength() {
		ser.RequestIDs = append(ser.RequestIDs, s.RequestID)
	}
	return nil
}

// Series returns the recorded history of name; an empty series if none.
func (c *Collector) Series(name StatName) *Series {
	if ser, ok := c.series[name]; ok {
		return ser
	}
	return &Series{}
}

// Names returns the recorded statistic names, sorted.
func (c *Collector) Names() []StatName {
	names := make([]StatName, 0, len(c.series))
	for n := range c.series {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
