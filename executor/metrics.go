package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "treestore_commands_total",
	Help: "The total number of protocol commands executed, by reply code",
}, []string{"command", "code"})

var commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "treestore_command_duration_seconds",
	Help:    "A histogram of command execution latencies",
	Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
}, []string{"command"})

var treeNodes = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "treestore_tree_nodes",
	Help: "Live nodes in the tree, including the root",
})

var treeLeaves = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "treestore_tree_leaves",
	Help: "Live leaves in the tree",
})

func setTreeGauges(store TreeStore) {
	stats := store.Stats()
	treeNodes.Set(float64(stats.Nodes))
	treeLeaves.Set(float64(stats.Leaves))
}
