// Package supervisor implements the Connection Supervisor: it holds an
// ordered, non-empty list of RPC endpoints and exposes a single live
// *ethclient.Client, rotating through the list on detected instability
// and notifying dependents so they can rebind. The teacher repo dials a
// single static endpoint once in cmd/main.go (ethclient.Dial(conf.RPC));
// this package generalizes that call site into a supervised, failing-
// over connection, keeping the teacher's plain ethclient usage as the
// underlying transport.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	heartbeatInterval = 30 * time.Second
	rotationDebounce  = 2 * time.Second
)

// OnSwitch is invoked after a successful rotation so dependents (wallet
// bindings, contract clients, event subscriptions) can rebind to the
// new client. Receives the freshly dialed client.
type OnSwitch func(client *ethclient.Client)

// Notifier sends an operator alert. Mirrors the root package's
// Notifier interface so Supervisor doesn't need to import it directly.
type Notifier interface {
	Alert(subject, body string)
}

// Supervisor owns the current connection and rotates through endpoints
// on instability. Exactly one rotation is ever in flight; concurrent
// triggers collapse into the one already running.
type Supervisor struct {
	endpoints []string

	mu           sync.RWMutex
	currentIndex int
	client       *ethclient.Client

	onSwitch OnSwitch
	notifier Notifier

	rotateMu      sync.Mutex
	rotating      bool
	stopHeartbeat chan struct{}
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithNotifier wires an operator-alert sink: every successful rotation
// raises a notification (spec §4.1 "Rotation: ... A notification is
// emitted (alert)"). Omitting this option leaves rotation silent
// except for the log.Printf trace.
func WithNotifier(notifier Notifier) Option {
	return func(s *Supervisor) { s.notifier = notifier }
}

// New dials the first endpoint and returns a running Supervisor.
// endpoints must be non-empty; order defines failover order.
func New(endpoints []string, onSwitch OnSwitch, opts ...Option) (*Supervisor, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("supervisor: no endpoints configured")
	}

	s := &Supervisor{endpoints: endpoints, onSwitch: onSwitch}
	for _, opt := range opts {
		opt(s)
	}

	client, err := dial(endpoints[0])
	if err != nil {
		return nil, fmt.Errorf("supervisor: dial initial endpoint %s: %w", endpoints[0], err)
	}
	s.client = client

	s.startHeartbeatIfWS(endpoints[0])
	return s, nil
}

func dial(endpoint string) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return ethclient.DialContext(ctx, endpoint)
}

func isWebsocket(endpoint string) bool {
	return strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://")
}

// CurrentClient returns the presently live chain client.
func (s *Supervisor) CurrentClient() *ethclient.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// TriggerRotation asks the supervisor to rotate to the next endpoint.
// Concurrent callers collapse into a single rotation; reason is logged
// for operational visibility.
func (s *Supervisor) TriggerRotation(reason string) {
	s.rotateMu.Lock()
	if s.rotating {
		s.rotateMu.Unlock()
		return
	}
	s.rotating = true
	s.rotateMu.Unlock()

	defer func() {
		s.rotateMu.Lock()
		s.rotating = false
		s.rotateMu.Unlock()
	}()

	s.rotate(reason)
}

func (s *Supervisor) rotate(reason string) {
	log.Printf("supervisor: rotating endpoints, reason=%s", reason)

	s.mu.Lock()
	oldClient := s.client
	s.mu.Unlock()

	s.stopHeartbeatIfRunning()
	if oldClient != nil {
		oldClient.Close()
	}

	time.Sleep(rotationDebounce)

	s.mu.Lock()
	nextIndex := (s.currentIndex + 1) % len(s.endpoints)
	nextEndpoint := s.endpoints[nextIndex]
	s.mu.Unlock()

	client, err := dial(nextEndpoint)
	if err != nil {
		log.Printf("supervisor: rotation dial failed for %s: %v", nextEndpoint, err)
		return
	}

	s.mu.Lock()
	s.currentIndex = nextIndex
	s.client = client
	s.mu.Unlock()

	s.startHeartbeatIfWS(nextEndpoint)

	if s.onSwitch != nil {
		s.onSwitch(client)
	}
	log.Printf("supervisor: rotated to endpoint index %d (%s)", nextIndex, nextEndpoint)

	if s.notifier != nil {
		s.notifier.Alert("[clpagent] RPC endpoint rotated",
			fmt.Sprintf("rotated to endpoint index %d (%s), reason=%s", nextIndex, nextEndpoint, reason))
	}
}

func (s *Supervisor) startHeartbeatIfWS(endpoint string) {
	if !isWebsocket(endpoint) {
		return
	}
	stop := make(chan struct{})
	s.mu.Lock()
	s.stopHeartbeat = stop
	s.mu.Unlock()

	go s.heartbeatLoop(stop)
}

func (s *Supervisor) stopHeartbeatIfRunning() {
	s.mu.Lock()
	stop := s.stopHeartbeat
	s.stopHeartbeat = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (s *Supervisor) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			client := s.CurrentClient()
			if client == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, err := client.BlockNumber(ctx)
			cancel()
			if err != nil {
				s.TriggerRotation(fmt.Sprintf("heartbeat probe failed: %v", err))
				return
			}
		}
	}
}
