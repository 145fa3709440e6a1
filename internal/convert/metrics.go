package convert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var conversionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "slidedrop_conversions_total",
		Help: "Remote conversions by result (success or error code).",
	},
	[]string{"result"},
)
