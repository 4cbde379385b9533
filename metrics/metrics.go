// Package metrics exposes Prometheus collectors for authorization decisions
// and audit log health.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AccessDecisions counts fine-grained access checks by entity kind and
	// outcome ("allow", "deny", "error").
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workhub_access_decisions_total",
		Help: "Entity access checks by entity and outcome.",
	}, []string{"entity", "outcome"})

	// GuardRejections counts requests rejected by route guards.
	GuardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workhub_guard_rejections_total",
		Help: "Requests rejected by route guards, by reason.",
	}, []string{"reason"})

	AuditWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workhub_audit_writes_total",
		Help: "Admin audit records written.",
	})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workhub_audit_write_failures_total",
		Help: "Admin audit records that failed to persist.",
	})

	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workhub_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
)

// ObserveDecision records the result of an access check.
func ObserveDecision(entity string, allowed bool, err error) {
	outcome := "deny"
	switch {
	case err != nil:
		outcome = "error"
	case allowed:
		outcome = "allow"
	}
	AccessDecisions.WithLabelValues(entity, outcome).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
