// Package metrics holds the Prometheus collectors of the pipeline and the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "epf"

// Metrics owns its registry so tests and several servers in one process do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsLoaded *prometheus.CounterVec
	LoadErrors    *prometheus.CounterVec
	LoadDuration  *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
	RowsWritten   prometheus.Counter
	CellsFilled   *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_loaded_total",
			Help: "Raw records loaded, by category.",
		}, []string{"category"}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "load_errors_total",
			Help: "Failed category loads, by category and error kind.",
		}, []string{"category", "kind"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "load_duration_seconds",
			Help:    "Time to load one category.",
			Buckets: prometheus.DefBuckets,
		}, []string{"category"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "preprocess_runs_total",
			Help: "Preprocessing runs, by outcome.",
		}, []string{"status"}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dataset_rows_written_total",
			Help: "Rows written to preprocessed datasets.",
		}),
		CellsFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cells_filled_total",
			Help: "Cells filled by the fill policy, by category.",
		}, []string{"category"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "API requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RecordsLoaded, m.LoadErrors, m.LoadDuration, m.Runs, m.RowsWritten, m.CellsFilled, m.HTTPRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
