// Copyright 2024 The par Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatEncodeDecodeRoundTrip(t *testing.T) {
	for _, seq := range []int64{0, 1, 42, -1, 1 << 40} {
		got := DecodeHeartbeat(EncodeHeartbeat(seq))
		assert.Equal(t, seq, got, "seq=%d", seq)
	}
}

func TestDecodeHeartbeatShortBufferIsZero(t *testing.T) {
	assert.Equal(t, int64(0), DecodeHeartbeat(nil))
	assert.Equal(t, int64(0), DecodeHeartbeat([]byte{1, 2, 3}))
}
