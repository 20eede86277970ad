// Package metrics exposes Prometheus counters for the session stub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeDenied   = "denied"
	OutcomeInternal = "internal"
)

var (
	SignedURLs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calm",
			Name:      "signed_urls_total",
			Help:      "Signed session URL requests by outcome.",
		},
		[]string{"outcome"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calm",
			Name:      "tool_calls_total",
			Help:      "Agent tool invocations by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	BridgeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calm",
			Name:      "bridge_messages_total",
			Help:      "Widget bridge messages by type.",
		},
		[]string{"type"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
