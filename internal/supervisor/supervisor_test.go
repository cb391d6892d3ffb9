package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWebsocket(t *testing.T) {
	assert.True(t, isWebsocket("wss://rpc.example.com"))
	assert.True(t, isWebsocket("ws://rpc.example.com"))
	assert.False(t, isWebsocket("https://rpc.example.com"))
	assert.False(t, isWebsocket("http://rpc.example.com"))
}

func TestNewRejectsEmptyEndpoints(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestTriggerRotationCollapsesConcurrentCallers(t *testing.T) {
	s := &Supervisor{endpoints: []string{"http://a", "http://b"}}

	// rotating is already true: a concurrent rotation is in flight, so
	// this call must return immediately without touching currentIndex.
	s.rotating = true
	s.TriggerRotation("duplicate trigger")

	assert.Equal(t, 0, s.currentIndex)
}
