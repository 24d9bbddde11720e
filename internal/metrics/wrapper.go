package metrics

import "time"

// MetricsWrapper exposes the metrics through the small method sets the
// connection manager, subscription layer and feed server depend on, so those
// packages never import Prometheus directly.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) ConnectsInc()       { w.m.WSConnects.Inc() }
func (w *MetricsWrapper) ClosesInc()         { w.m.WSCloses.Inc() }
func (w *MetricsWrapper) DialFailuresInc()   { w.m.WSDialFailures.Inc(); w.m.ErrorsTotal.Inc() }
func (w *MetricsWrapper) ReconnectsInc()     { w.m.WSReconnects.Inc() }
func (w *MetricsWrapper) FramesReceivedInc() { w.m.FramesReceived.Inc() }
func (w *MetricsWrapper) FramesDroppedInc()  { w.m.FramesDropped.Inc(); w.m.ErrorsTotal.Inc() }
func (w *MetricsWrapper) SendsDroppedInc()   { w.m.SendsDropped.Inc(); w.m.ErrorsTotal.Inc() }
func (w *MetricsWrapper) TicksDeliveredInc() { w.m.TicksDelivered.Inc() }

func (w *MetricsWrapper) SubscriptionsAdd(delta float64) {
	w.m.ActiveSubscriptions.Add(delta)
}

func (w *MetricsWrapper) HistoryObserve(d time.Duration, err error) {
	w.m.HistoryLatency.Observe(d.Seconds())
	if err != nil {
		w.m.HistoryFailures.Inc()
		w.m.ErrorsTotal.Inc()
	}
}

func (w *MetricsWrapper) FeedClientsAdd(delta float64) {
	w.m.FeedClients.Add(delta)
}
