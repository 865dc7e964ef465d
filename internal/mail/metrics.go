package mail

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mail_queue_depth",
		Help: "Number of emails waiting for a delivery worker.",
	})

	messagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_messages_dropped_total",
		Help: "Emails discarded because the queue was full or closed.",
	}, []string{"template"})

	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_messages_sent_total",
		Help: "Delivery attempts by sender and result.",
	}, []string{"sender", "result"})
)
