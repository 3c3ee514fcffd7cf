package documents

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamroster",
		Subsystem: "store",
		Name:      "writes_total",
		Help:      "Document tree writes by operation and result",
	}, []string{"op", "result"})

	feedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamroster",
		Subsystem: "store",
		Name:      "change_feed_events_total",
		Help:      "Change feed messages by outcome",
	}, []string{"outcome"})
)
