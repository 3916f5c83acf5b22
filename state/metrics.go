package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dupEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minimirror_duplicate_events_total",
		Help: "Message events discarded by the dedup key.",
	})
	mergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "minimirror_merges_total",
		Help: "Merges applied to the conversation mirror, by source.",
	}, []string{"source"})
)
