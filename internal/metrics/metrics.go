// Package metrics defines the service's Prometheus collectors, exposed on
// /metrics by the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginsTotal counts login and register attempts by operation and result.
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login and register attempts.",
	}, []string{"operation", "result"})

	// RefreshesTotal counts refresh attempts by result.
	RefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refreshes_total",
		Help: "Refresh token redemptions.",
	}, []string{"result"})

	// ReplaysDetectedTotal counts refresh tokens rejected as replays. Replay
	// deletes the session, so this is a security signal, not client noise.
	ReplaysDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_replays_detected_total",
		Help: "Refresh tokens rejected because a newer rotation superseded them.",
	})
)
