// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBlocksIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blockidxd",
		Name:      "blocks_ingested_total",
		Help:      "Block frames read from block files.",
	})

	metricTxIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blockidxd",
		Name:      "transactions_indexed_total",
		Help:      "Transactions inserted into the transaction map.",
	})

	metricReorgs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blockidxd",
		Name:      "reorgs_total",
		Help:      "Chain reorganizations detected while organizing.",
	})
)
