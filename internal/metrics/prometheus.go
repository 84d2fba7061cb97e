package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	GuardAllowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_guard_allows_total",
		Help: "Total number of protected requests allowed by the edge guard.",
	})
	GuardRedirectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_guard_redirects_total",
		Help: "Total number of protected requests redirected to login.",
	})
	SessionsEstablishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_sessions_established_total",
		Help: "Total number of successful session issuances.",
	})
	SessionsClearedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_sessions_cleared_total",
		Help: "Total number of session clear operations.",
	})
	DeviceChecksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_device_checks_total",
		Help: "Total number of device trust checks performed by the watcher.",
	})
	RevocationsDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_revocations_detected_total",
		Help: "Total number of device revocations detected.",
	})
	TeardownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_teardowns_total",
		Help: "Total number of remote sign-out teardowns executed.",
	})
	HandoffsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_oauth_handoffs_completed_total",
		Help: "Total number of OAuth handoffs completed successfully.",
	})
	HandoffsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trustgate_oauth_handoffs_failed_total",
		Help: "Total number of OAuth handoffs that failed closed.",
	})
)

// Register registers all trust metrics with the given registerer. It should
// be called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	collectors := []prometheus.Collector{
		GuardAllowsTotal,
		GuardRedirectsTotal,
		SessionsEstablishedTotal,
		SessionsClearedTotal,
		DeviceChecksTotal,
		RevocationsDetectedTotal,
		TeardownsTotal,
		HandoffsCompletedTotal,
		HandoffsFailedTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register trust metric")
		}
	}
}
