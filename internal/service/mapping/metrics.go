package mapping

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce      sync.Once
	stageTransitions *prometheus.CounterVec
	stageChecks      *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		stageTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainmap",
			Name:      "domain_stage_transitions_total",
			Help:      "Count of committed domain stage transitions",
		}, []string{"from", "to"})
		stageChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainmap",
			Name:      "domain_stage_checks_total",
			Help:      "Count of DNS and SSL probes by outcome",
		}, []string{"stage", "result"})

		for _, c := range []**prometheus.CounterVec{&stageTransitions, &stageChecks} {
			if err := prometheus.Register(*c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if errors.As(err, &are) {
					if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
						*c = existing
					}
				}
			}
		}
	})
}
