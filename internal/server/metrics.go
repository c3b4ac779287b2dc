package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ragserve_ingest_requests_total",
		Help: "Completed ingestion requests.",
	})
	ingestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ragserve_ingest_failures_total",
		Help: "Failed ingestion requests.",
	})
	chatTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ragserve_chat_requests_total",
		Help: "Completed chat turns.",
	})
	chatFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ragserve_chat_failures_total",
		Help: "Failed chat turns.",
	})
)
