// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package atx

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricIndexBuilds        = "index_builds_total"
	MetricIndexBuildFailures = "index_build_failures_total"
	MetricIndexPagesRead     = "index_pages_read_total"
)

var CounterIndexBuilds = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "filegdb",
		Name:      MetricIndexBuilds,
		Help:      "Attribute index iterators built, by operator.",
	},
	[]string{
		"op",
	},
)

var CounterIndexBuildFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "filegdb",
		Name:      MetricIndexBuildFailures,
		Help:      "Attribute index iterators that could not be built.",
	},
	[]string{
		"code",
	},
)

var CounterIndexPagesRead = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "filegdb",
		Name:      MetricIndexPagesRead,
		Help:      "Pages read from attribute index files.",
	},
)

func init() {
	prometheus.MustRegister(CounterIndexBuilds)
	prometheus.MustRegister(CounterIndexBuildFailures)
	prometheus.MustRegister(CounterIndexPagesRead)
}
