// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package table

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricRowsSelected  = "rows_selected_total"
	MetricRowErrors     = "row_errors_total"
	MetricRecoveryScans = "recovery_scans_total"
	MetricRecoveredRows = "recovered_rows_total"
	MetricDeletedRows   = "recovered_deleted_rows_total"
)

var CounterRowsSelected = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "filegdb",
		Name:      MetricRowsSelected,
		Help:      "Rows read from table files by SelectRow.",
	},
)

var CounterRowErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "filegdb",
		Name:      MetricRowErrors,
		Help:      "Row selection or field decode failures.",
	},
	[]string{
		"code",
	},
)

var CounterRecoveryScans = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "filegdb",
		Name:      MetricRecoveryScans,
		Help:      "Tables opened without a usable row locator.",
	},
)

var CounterRecoveredRows = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "filegdb",
		Name:      MetricRecoveredRows,
		Help:      "Row offsets found by the recovery scan.",
	},
)

var CounterDeletedRows = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "filegdb",
		Name:      MetricDeletedRows,
		Help:      "Soft-deleted rows seen by the recovery scan.",
	},
)

func init() {
	prometheus.MustRegister(CounterRowsSelected)
	prometheus.MustRegister(CounterRowErrors)
	prometheus.MustRegister(CounterRecoveryScans)
	prometheus.MustRegister(CounterRecoveredRows)
	prometheus.MustRegister(CounterDeletedRows)
}
