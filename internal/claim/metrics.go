package claim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "edgeberry_claim_attempts_total",
	Help: "Claim and release attempts by outcome",
}, []string{"action", "outcome"})
