package realtime

import (
	"context"
	"log"
	"sync"
	"time"
)

// Toast kinds shown to the user while a channel reconnects.
const (
	ToastReconnecting = "reconnecting"
	ToastReconnected  = "reconnected"
)

type Toast struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ConnectionState is the per-channel, user-facing view of the subscription.
type ConnectionState struct {
	Reconnecting   bool          `json:"reconnecting"`
	Toast          *Toast        `json:"toast,omitempty"`
	NextRetryDelay time.Duration `json:"nextRetryDelayMs,omitempty"`
	LastActivity   time.Time     `json:"lastActivity,omitempty"`
}

// controller owns one subscription key: its channel, its attempt counter and
// its single pending retry timer.
type controller struct {
	key        string
	channel    Channel
	onEvent    EventHandler
	attempt    int
	retryTimer *time.Timer
	state      ConnectionState
}

// Manager drives subscriptions through
// subscribing → subscribed → failed → retry-scheduled → subscribing, with
// exponential backoff capped at maxDelay. Terminal teardown is reachable only
// through UnsubscribeFromAll.
type Manager struct {
	mu          sync.Mutex
	factory     ChannelFactory
	baseDelay   time.Duration
	maxDelay    time.Duration
	controllers map[string]*controller
	tearingDown bool
	// queue, when set, is drained on teardown together with the channels.
	queue *RefreshQueue
}

func NewManager(factory ChannelFactory, baseDelay, maxDelay time.Duration, queue *RefreshQueue) *Manager {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = 15 * time.Second
	}
	return &Manager{
		factory:     factory,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		controllers: make(map[string]*controller),
		queue:       queue,
	}
}

// Subscribe opens a channel for key. An existing channel under the same key
// is torn down first so no duplicate listeners survive a resubscribe.
func (m *Manager) Subscribe(ctx context.Context, key string, onEvent EventHandler) error {
	m.mu.Lock()
	if previous, ok := m.controllers[key]; ok {
		m.dropLocked(previous)
	}
	c := &controller{key: key, onEvent: onEvent}
	m.controllers[key] = c
	m.mu.Unlock()

	return m.open(ctx, c)
}

func (m *Manager) open(ctx context.Context, c *controller) error {
	channel, err := m.factory.Open(ctx, c.key,
		func(status ChannelStatus, cause error) { m.handleStatus(c.key, status, cause) },
		func(evt Event) { m.handleEvent(c.key, evt) },
	)
	if err != nil {
		log.Printf("realtime: open channel %s: %v", c.key, err)
		m.handleStatus(c.key, StatusChannelError, err)
		return err
	}

	m.mu.Lock()
	if current, ok := m.controllers[c.key]; ok && current == c {
		c.channel = channel
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	// Torn down or replaced while opening; discard the fresh channel.
	if err := channel.Unsubscribe(context.Background()); err != nil {
		log.Printf("realtime: discard stale channel %s: %v", c.key, err)
	}
	return nil
}

func (m *Manager) handleEvent(key string, evt Event) {
	m.mu.Lock()
	c, ok := m.controllers[key]
	if ok {
		c.state.LastActivity = time.Now()
	}
	var onEvent EventHandler
	if ok {
		onEvent = c.onEvent
	}
	m.mu.Unlock()

	if onEvent != nil {
		onEvent(evt)
	}
}

// handleStatus classifies a status transition for key. Events for keys that
// are no longer tracked (torn down or replaced) are ignored, so a stale
// channel can never schedule a retry.
func (m *Manager) handleStatus(key string, status ChannelStatus, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.controllers[key]
	if !ok {
		return
	}

	switch {
	case status == StatusSubscribed:
		c.stopRetryLocked()
		c.attempt = 0
		c.state.Reconnecting = false
		c.state.NextRetryDelay = 0
		c.state.LastActivity = time.Now()
		if c.state.Toast != nil && c.state.Toast.Kind == ToastReconnecting {
			// The UI clears the reconnected toast after its display window.
			c.state.Toast = &Toast{Kind: ToastReconnected, Message: "Live updates restored"}
		} else {
			c.state.Toast = nil
		}

	case status.failed():
		if m.tearingDown {
			return
		}
		delay := m.backoffDelay(c.attempt)
		c.attempt++
		c.stopRetryLocked()
		c.retryTimer = time.AfterFunc(delay, func() { m.retry(key) })
		c.state.Reconnecting = true
		c.state.NextRetryDelay = delay
		c.state.Toast = &Toast{Kind: ToastReconnecting, Message: "Connection lost, reconnecting…"}
		log.Printf("realtime: channel %s %s (attempt %d, retry in %s): %v", key, status, c.attempt, delay, cause)
	}
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= m.maxDelay {
			return m.maxDelay
		}
	}
	if delay > m.maxDelay {
		return m.maxDelay
	}
	return delay
}

func (m *Manager) retry(key string) {
	m.mu.Lock()
	c, ok := m.controllers[key]
	if !ok || m.tearingDown {
		m.mu.Unlock()
		return
	}
	c.retryTimer = nil
	stale := c.channel
	c.channel = nil
	m.mu.Unlock()

	if stale != nil {
		if err := stale.Unsubscribe(context.Background()); err != nil {
			log.Printf("realtime: unsubscribe stale channel %s: %v", key, err)
		}
	}
	_ = m.open(context.Background(), c)
}

// State returns a snapshot of the connection state for key.
func (m *Manager) State(key string) (ConnectionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.controllers[key]
	if !ok {
		return ConnectionState{}, false
	}
	return c.state, true
}

// States snapshots every tracked channel.
func (m *Manager) States() map[string]ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ConnectionState, len(m.controllers))
	for key, c := range m.controllers {
		out[key] = c.state
	}
	return out
}

// UnsubscribeFromAll tears down every channel, the pending retry timers and
// the refresh queue. Each unsubscribe failure is logged independently. The
// teardown flag is cleared afterwards so a fresh Subscribe behaves normally.
func (m *Manager) UnsubscribeFromAll(ctx context.Context) {
	m.mu.Lock()
	m.tearingDown = true
	channels := make(map[string]Channel, len(m.controllers))
	for key, c := range m.controllers {
		c.stopRetryLocked()
		if c.channel != nil {
			channels[key] = c.channel
		}
	}
	m.controllers = make(map[string]*controller)
	m.mu.Unlock()

	if m.queue != nil {
		m.queue.Clear()
	}

	for key, channel := range channels {
		if err := channel.Unsubscribe(ctx); err != nil {
			log.Printf("realtime: unsubscribe channel %s: %v", key, err)
		}
	}

	m.mu.Lock()
	m.tearingDown = false
	m.mu.Unlock()
}

// dropLocked removes a controller being replaced: timer stopped, channel
// closed in the background.
func (m *Manager) dropLocked(c *controller) {
	c.stopRetryLocked()
	delete(m.controllers, c.key)
	if c.channel != nil {
		stale := c.channel
		key := c.key
		go func() {
			if err := stale.Unsubscribe(context.Background()); err != nil {
				log.Printf("realtime: unsubscribe replaced channel %s: %v", key, err)
			}
		}()
	}
}

func (c *controller) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}
