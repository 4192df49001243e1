// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/featurebasedb/filegdb/logger"
)

func TestStandardLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewStandardLogger(&buf)
	l.Debugf("hidden %d", 1)
	l.Warnf("clamped %d", 2)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug message logged at info verbosity: %q", out)
	}
	if !strings.Contains(out, "WARN:  clamped 2") {
		t.Fatalf("unexpected output: %q", out)
	}

	buf.Reset()
	logger.NewLogger(&buf, true).WithPrefix("tbl: ").Debugf("shown")
	if !strings.Contains(buf.String(), "DEBUG: shown") || !strings.Contains(buf.String(), "tbl: ") {
		t.Fatalf("unexpected verbose output: %q", buf.String())
	}
}

func TestBufferLogger(t *testing.T) {
	l := logger.NewBufferLogger()
	l.Errorf("overlap at %d", 5)
	if got, want := l.String(), "ERROR: overlap at 5\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
