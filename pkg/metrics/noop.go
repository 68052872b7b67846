package metrics

// noop discards every observation. It is the default Collector so wiring
// metrics through autosharded.Storage never requires a nil check at the
// call site.
type noop struct{}

// NewNoop returns a Collector that discards everything it is given.
func NewNoop() Collector { return noop{} }

func (noop) IncCounter(name string, labels map[string]string, delta float64)        {}
func (noop) SetGauge(name string, labels map[string]string, value float64)         {}
func (noop) ObserveHistogram(name string, labels map[string]string, value float64) {}
