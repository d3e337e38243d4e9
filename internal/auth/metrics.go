package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var refreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "predictx_auth_refresh_total",
		Help: "Token refresh attempts by result (success, failure, missing_token).",
	},
	[]string{"result"},
)
