package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transfers counts successful locks (outbound) and unlocks (inbound) per counterparty chain
	Transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locker_transfers_total",
			Help: "Number of successful lock/unlock operations",
		},
		[]string{"direction", "chain"},
	)

	// Rejections counts failed locker calls by operation and error kind
	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locker_rejections_total",
			Help: "Number of rejected locker calls",
		},
		[]string{"operation", "kind"},
	)

	// CustodyBalance is the last observed token balance held by the locker
	CustodyBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "locker_custody_balance",
		Help: "Token balance in locker custody (base units, float approximation)",
	})

	// GatewayMessages counts inbound gateway deliveries by outcome
	GatewayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locker_gateway_messages_total",
			Help: "Inbound gateway messages by outcome",
		},
		[]string{"result"},
	)

	// HTTPRequests counts API requests by route pattern and status code
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locker_http_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"route", "code"},
	)
)
