// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/featurebasedb/filegdb"
	"github.com/pelletier/go-toml"
)

func TestGenerateConfigCommand_Run(t *testing.T) {
	buf := &bytes.Buffer{}
	cm := NewGenerateConfigCommand(nil, buf, buf)
	err := cm.Run(context.Background())
	if err != nil {
		t.Fatalf("Config Run doesn't work: %s", err)
	}
	if !strings.Contains(buf.String(), "max-row-size") {
		t.Fatalf("Unexpected config: %s", buf.String())
	}

	conf := &filegdb.Config{}
	if err := toml.Unmarshal(buf.Bytes(), conf); err != nil {
		t.Fatalf("reading generated config: %v", err)
	}
	if err := conf.Validate(); err != nil {
		t.Fatalf("generated config is invalid: %v", err)
	}
}
