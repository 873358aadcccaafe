// Package metrics exposes Prometheus counters for schedule mutations,
// storage and catalog traffic. A nil *Recorder is a valid no-op.
package metrics

import (
	"net/http"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mutation outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeNoop     = "noop"
	OutcomeRejected = "rejected"
)

// Recorder records application metrics.
type Recorder struct {
	once            sync.Once
	mutations       *prom.CounterVec
	storeLoads      *prom.CounterVec
	storeSaveErrors *prom.CounterVec
	catalogRequests *prom.CounterVec
	scheduleSize    prom.Gauge
	historySize     prom.Gauge
}

// New constructs and registers the metrics on reg. A nil reg gets a fresh
// private registry.
func New(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{}
	r.once.Do(func() {
		r.mutations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "examplan",
			Name:      "schedule_mutations_total",
			Help:      "Schedule operations by name and outcome",
		}, []string{"op", "outcome"})
		r.storeLoads = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "examplan",
			Name:      "store_loads_total",
			Help:      "Store loads by key and status (loaded, absent, corrupt)",
		}, []string{"key", "status"})
		r.storeSaveErrors = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "examplan",
			Name:      "store_save_failures_total",
			Help:      "Failed store writes by key",
		}, []string{"key"})
		r.catalogRequests = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "examplan",
			Name:      "catalog_requests_total",
			Help:      "Catalog API requests by endpoint and result",
		}, []string{"endpoint", "result"})
		r.scheduleSize = prom.NewGauge(prom.GaugeOpts{
			Namespace: "examplan",
			Name:      "schedule_items",
			Help:      "Number of exams in the current schedule",
		})
		r.historySize = prom.NewGauge(prom.GaugeOpts{
			Namespace: "examplan",
			Name:      "schedule_history_entries",
			Help:      "Number of saved schedule snapshots",
		})
		reg.MustRegister(r.mutations, r.storeLoads, r.storeSaveErrors, r.catalogRequests, r.scheduleSize, r.historySize)
	})
	return r
}

func (r *Recorder) IncMutation(op, outcome string) {
	if r == nil || r.mutations == nil {
		return
	}
	r.mutations.WithLabelValues(op, outcome).Inc()
}

func (r *Recorder) IncStoreLoad(key, status string) {
	if r == nil || r.storeLoads == nil {
		return
	}
	r.storeLoads.WithLabelValues(key, status).Inc()
}

func (r *Recorder) IncStoreSaveFailure(key string) {
	if r == nil || r.storeSaveErrors == nil {
		return
	}
	r.storeSaveErrors.WithLabelValues(key).Inc()
}

func (r *Recorder) IncCatalogRequest(endpoint string, success bool) {
	if r == nil || r.catalogRequests == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	r.catalogRequests.WithLabelValues(endpoint, res).Inc()
}

func (r *Recorder) SetScheduleSize(n int) {
	if r == nil || r.scheduleSize == nil {
		return
	}
	r.scheduleSize.Set(float64(n))
}

func (r *Recorder) SetHistorySize(n int) {
	if r == nil || r.historySize == nil {
		return
	}
	r.historySize.Set(float64(n))
}

// HTTPHandler serves the metrics registered on reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
