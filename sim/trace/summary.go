package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalEvents     int
	IssuedRequests  int
	FirstEventTime  float64
	LastEventTime   float64
	KindCounts      map[string]int // message kind → deliveries
	ComponentCounts map[string]int // component → deliveries
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		KindCounts:      make(map[string]int),
		ComponentCounts: make(map[string]int),
	}
	if st == nil || len(st.Events) == 0 {
		return summary
	}

	summary.TotalEvents = len(st.Events)
	summary.FirstEventTime = st.Events[0].Time
	summary.LastEventTime = st.Events[len(st.Events)-1].Time
	for _, e := range st.Events {
		summary.KindCounts[e.Kind]++
		summary.ComponentCounts[e.Component]++
	}
	summary.IssuedRequests = summary.KindCounts["serve"]
	return summary
}
