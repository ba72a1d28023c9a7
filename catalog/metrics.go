package catalog

import "github.com/prometheus/client_golang/prometheus"

// Metrics 記錄流程結果以及外部物件的清理狀況，nil 時不做任何事
type Metrics struct {
	workflows     *prometheus.CounterVec
	objectDeletes *prometheus.CounterVec
	orphans       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "workflows_total",
			Help:      "Product workflows by name and result.",
		}, []string{"workflow", "result"}),
		objectDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "object_deletes_total",
			Help:      "External object deletions by outcome.",
		}, []string{"outcome"}),
		orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catalog",
			Name:      "orphan_objects_total",
			Help:      "External objects left without a record after a failed cleanup.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.workflows, m.objectDeletes, m.orphans)
	}
	return m
}

func (m *Metrics) workflow(name, result string) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(name, result).Inc()
}

func (m *Metrics) objectDelete(outcome DeleteOutcome) {
	if m == nil {
		return
	}
	m.objectDeletes.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) orphan() {
	if m == nil {
		return
	}
	m.orphans.Inc()
}
