package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallRateLimiterPerClient(t *testing.T) {
	rl := NewCallRateLimiter(0.001, 2)

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "buckets are per client")

	rl.Forget("alice")
	assert.True(t, rl.Allow("alice"))
}
