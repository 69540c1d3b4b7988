// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package par

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRegisterAfterSealPanics calls the process-wide, irreversible
// Seal, so it lives in a file named to sort last among this package's
// test files: every other test that registers a label must have run
// (and every label used by this package's tests must already be
// registered) before this executes.
func TestRegisterAfterSealPanics(t *testing.T) {
	Seal()
	assert.True(t, Sealed())
	assert.Panics(t, func() {
		RegisterValue("par_test.too-late", func([]byte) (interface{}, error) { return nil, nil })
	})
}
