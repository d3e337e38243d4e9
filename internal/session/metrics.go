package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictx_session_storage_errors_total",
			Help: "Session storage failures swallowed by the store",
		},
		[]string{"op"},
	)

	mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictx_session_mutations_total",
			Help: "Session mutations applied by the store",
		},
		[]string{"kind"},
	)
)
