// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package errors_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Run("Is", func(t *testing.T) {
		corrupt := errors.Newf(errors.ErrStructuralCorruption, "bad page %d", 3)
		short := errors.New(errors.ErrTruncatedRead, "short read")

		tests := []struct {
			err    error
			target errors.Code
			exp    bool
		}{
			{err: corrupt, target: errors.ErrStructuralCorruption, exp: true},
			{err: corrupt, target: errors.ErrTruncatedRead, exp: false},
			{err: short, target: errors.ErrTruncatedRead, exp: true},
			{err: errors.Wrap(corrupt, "opening index"), target: errors.ErrStructuralCorruption, exp: true},
			{err: errors.WithMessage(short, "row 7"), target: errors.ErrTruncatedRead, exp: true},
			{err: fmt.Errorf("plain"), target: errors.ErrStructuralCorruption, exp: false},
			{err: io.EOF, target: errors.ErrTruncatedRead, exp: false},
		}
		for i, test := range tests {
			t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
				assert.Equal(t, test.exp, errors.Is(test.err, test.target))
			})
		}
	})

	t.Run("CodeOf", func(t *testing.T) {
		err := errors.Wrapf(errors.New(errors.ErrAllocationFailure, "grow"), "row %d", 1)
		assert.Equal(t, errors.ErrAllocationFailure, errors.CodeOf(err))
		assert.Equal(t, errors.ErrUncoded, errors.CodeOf(io.EOF))
	})

	t.Run("Message", func(t *testing.T) {
		err := errors.Wrap(errors.New(errors.ErrNoIndex, "field x"), "build")
		assert.Equal(t, "build: NoIndex: field x", err.Error())
	})
}
