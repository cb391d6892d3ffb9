package supervisor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUnstable(t *testing.T) {
	cases := []struct {
		err      error
		unstable bool
	}{
		{nil, false},
		{errors.New("context deadline exceeded: timeout"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("bad_data: invalid response"), true},
		{errors.New("execution reverted"), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.unstable, IsUnstable(c.err))
	}
}

func TestWithRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := WithRetry(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, 3, nil)

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryExhaustsAndSurfacesLastError(t *testing.T) {
	attempts := 0
	err := WithRetry(func() error {
		attempts++
		return errors.New("persistent failure")
	}, 2, nil)

	assert.Error(t, err)
	assert.Equal(t, "persistent failure", err.Error())
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestWithRetryTriggersRotationOnUnstableError(t *testing.T) {
	rotated := 0
	attempts := 0
	_ = WithRetry(func() error {
		attempts++
		if attempts < 2 {
			return errors.New("429 rate limited")
		}
		return nil
	}, 3, func(reason string) { rotated++ })

	assert.Equal(t, 1, rotated)
}
