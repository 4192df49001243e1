// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"io"
	"strings"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "filegdb_"

// writeMetrics prints the nonzero filegdb counters of the default registry.
// Families come back from Gather sorted by name.
func writeMetrics(w io.Writer) error {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return errors.Wrap(err, "gathering metrics")
	}
	var rows [][]interface{}
	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), metricPrefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			if v == 0 {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			rows = append(rows, []interface{}{mf.GetName(), strings.Join(labels, ","), v})
		}
	}
	writeTable(w, []interface{}{"metric", "labels", "value"}, rows)
	return nil
}
