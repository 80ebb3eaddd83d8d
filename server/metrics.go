package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "treestore_connections_active",
	Help: "Client sessions currently being served",
})

var connectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "treestore_connections_total",
	Help: "The total number of accepted client connections, by outcome",
}, []string{"outcome"})
