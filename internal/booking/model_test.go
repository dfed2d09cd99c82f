package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"PENDING", "CONFIRMED", "COMPLETED", "CANCELLED"} {
		st, ok := ParseStatus(valid)
		assert.True(t, ok)
		assert.Equal(t, Status(valid), st)
	}

	for _, invalid := range []string{"", "pending", "EXPIRED", "DONE"} {
		_, ok := ParseStatus(invalid)
		assert.False(t, ok, "%q should not parse", invalid)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}
