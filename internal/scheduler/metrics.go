package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "invoice_ingestion_runs_total",
		Help: "Ingestion run attempts by trigger and outcome.",
	},
	[]string{"trigger", "outcome"},
)
