package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDisabledWithoutFullConfig(t *testing.T) {
	n := New(Config{User: "a@b.com", Pass: "secret"})
	assert.False(t, n.enabled)
	// Alert on a disabled notifier must be a silent no-op: this must
	// not panic or attempt any network call.
	n.Alert("subject", "body")
}

func TestNewEnabledWithFullConfig(t *testing.T) {
	n := New(Config{User: "a@b.com", Pass: "secret", To: "ops@b.com", Service: "smtp.example.com:587"})
	assert.True(t, n.enabled)
}

func TestIndexColon(t *testing.T) {
	assert.Equal(t, 4, indexColon("smtp:587"))
	assert.Equal(t, -1, indexColon("smtp"))
}
