package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the session controller and webhook handler. Outcome label
// values: "ok", "error", "rollback" (sends) and "ok", "rejected",
// "store_error" (webhook events).
var (
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_sends_total",
		Help: "Chat send operations by outcome.",
	}, []string{"outcome"})

	StreamChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_stream_chunks_total",
		Help: "Streamed reply chunks applied to a session.",
	})

	StaleChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_stale_chunks_total",
		Help: "Stream chunks discarded because their session was replaced.",
	})

	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_send_rollbacks_total",
		Help: "Optimistic message sequences rolled back after a failed send.",
	})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_uploads_total",
		Help: "Document upload operations by outcome.",
	}, []string{"outcome"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_webhook_events_total",
		Help: "Identity webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	ThreadsReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_threads_reaped_total",
		Help: "Empty threads deleted by the reaper.",
	})
)
