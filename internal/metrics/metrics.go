// Package metrics holds the Prometheus collectors shared by the storage,
// service and notification layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskrooms"

var (
	transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Units of work by outcome (committed, aborted, retried).",
	}, []string{"outcome"})

	cascadeDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cascade_deleted_total",
		Help:      "Documents removed by room cascade deletion.",
	}, []string{"kind"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification events by sink and result.",
	}, []string{"sink", "result"})

	sockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_connections",
		Help:      "Open WebSocket connections.",
	})
)

func TransactionCommitted() { transactions.WithLabelValues("committed").Inc() }
func TransactionAborted()   { transactions.WithLabelValues("aborted").Inc() }
func TransactionRetried()   { transactions.WithLabelValues("retried").Inc() }

func CascadeDeleted(tasks, comments int64) {
	cascadeDeleted.WithLabelValues("tasks").Add(float64(tasks))
	cascadeDeleted.WithLabelValues("comments").Add(float64(comments))
}

func NotificationSent(sink string)   { notifications.WithLabelValues(sink, "sent").Inc() }
func NotificationFailed(sink string) { notifications.WithLabelValues(sink, "failed").Inc() }

func SocketOpened() { sockets.Inc() }
func SocketClosed() { sockets.Dec() }
