package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxlane/voxlane/pkg/transport"
)

// Config wires a Controller to its collaborators.
type Config struct {
	// Tokens fetches connection credentials. Required.
	Tokens *TokenClient

	// NewSession builds a fresh transport session per connect attempt.
	// Required.
	NewSession func() transport.Session

	// Device is the local audio capture device. Defaults to NopDevice.
	Device CaptureDevice

	// Notifier receives user-visible fault notifications. Defaults to a
	// LogNotifier.
	Notifier Notifier

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Controller owns one session lifecycle at a time.
//
// State machine:
//
//	Idle -(Start)-> Connecting -(transport success)-> Active
//	Connecting -(failure)-> Disconnected
//	Active -(transport disconnected event | End completes)-> Disconnected
//
// There is no transition back to Idle. At most one session is Active per
// controller; overlapping Start calls while Connecting or Active are
// no-ops.
type Controller struct {
	cfg    Config
	log    *slog.Logger
	cancel CancelToken

	mu    sync.Mutex
	state State
	ended bool
	sess  transport.Session
	taps  []tapRegistration
}

// tapRegistration records one attached event handler so teardown can
// detach exactly what setup attached.
type tapRegistration struct {
	name   transport.EventName
	detach transport.Detach
}

// New creates a controller in the Idle state.
func New(cfg Config) (*Controller, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("session: Config.Tokens is required")
	}
	if cfg.NewSession == nil {
		return nil, errors.New("session: Config.NewSession is required")
	}
	if cfg.Device == nil {
		cfg.Device = NopDevice{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{Log: cfg.Logger}
	}
	return &Controller{cfg: cfg, log: cfg.Logger, state: Idle}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ended reports whether the user has requested a logical end of session.
func (c *Controller) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// Session returns the live transport session, or nil while not Active.
func (c *Controller) Session() transport.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Start acquires a credential and opens the transport connection, racing
// the capture-device enable alongside. Idempotent while Connecting or
// Active. Credential and connect failures are reported through the
// notifier unless the controller has been torn down; a device failure is
// notified independently and never aborts the connect path.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Active {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.ended = false
	c.mu.Unlock()

	go c.enableDevice(ctx)

	cred, err := c.cfg.Tokens.Fetch(ctx)
	if err != nil {
		c.failConnect(err)
		return err
	}
	if c.cancel.Cancelled() {
		c.setState(Disconnected)
		return nil
	}

	sess := c.cfg.NewSession()
	if err := c.connect(ctx, sess, cred); err != nil {
		c.failConnect(&ConnectError{Cause: err})
		return err
	}
	// Close or End may have run while the connect was in flight; the
	// transition to Active is decided under the same lock those take.
	c.mu.Lock()
	if c.cancel.Cancelled() || c.ended {
		c.state = Disconnected
		c.mu.Unlock()
		sess.Disconnect()
		return nil
	}
	c.sess = sess
	c.state = Active
	c.mu.Unlock()
	c.log.Info("session active", "server", cred.ServerURL, "room", cred.RoomName)

	c.registerTaps(sess)
	return nil
}

// connect wraps the transport connect so a panicking implementation
// cannot crash the caller; the race with device enable means neither leg
// may take the other down.
func (c *Controller) connect(ctx context.Context, sess transport.Session, cred *Credential) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return sess.Connect(ctx, cred.ServerURL, cred.ParticipantToken)
}

// enableDevice runs the capture-device leg of the start race.
func (c *Controller) enableDevice(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && !c.cancel.Cancelled() {
			c.cfg.Notifier.Notify(Notification{
				Title:       "Microphone unavailable",
				Description: fmt.Sprintf("audio capture panic: %v", r),
			})
		}
	}()
	if err := c.cfg.Device.Enable(ctx); err != nil && !c.cancel.Cancelled() {
		c.cfg.Notifier.Notify(Notification{
			Title:       "Microphone unavailable",
			Description: err.Error(),
		})
	}
}

// failConnect handles the merged credential-fetch/connect failure path.
// Errors after teardown are discarded: a disconnect-then-reconnect race
// must not surface a stale fault.
func (c *Controller) failConnect(err error) {
	c.setState(Disconnected)
	if c.cancel.Cancelled() {
		c.log.Debug("connect failure after teardown, discarded", "err", err)
		return
	}
	c.log.Error("session start failed", "err", err)
	c.cfg.Notifier.Notify(Notification{
		Title:       "Connection failed",
		Description: err.Error(),
	})
}

// registerTaps attaches the transport listeners: the authoritative
// disconnected handler plus diagnostic taps that are logged and never
// change controller state. An event name the transport version does not
// support is skipped, never fatal.
func (c *Controller) registerTaps(sess transport.Session) {
	tap := func(name transport.EventName, h transport.Handler) {
		detach, err := transport.SubscribeAny(sess, name, h)
		if err != nil {
			if errors.Is(err, transport.ErrUnknownEvent) {
				c.log.Debug("transport does not support event, tap skipped", "event", string(name))
				return
			}
			c.log.Warn("tap registration failed", "event", string(name), "err", err)
			return
		}
		c.mu.Lock()
		c.taps = append(c.taps, tapRegistration{name: name, detach: detach})
		c.mu.Unlock()
	}

	tap(transport.EventDisconnected, func(ev transport.Event) {
		if ev.Err != nil && !c.cancel.Cancelled() {
			c.log.Warn("transport disconnected", "err", ev.Err)
		}
		c.setState(Disconnected)
	})
	tap(transport.EventDeviceError, func(ev transport.Event) {
		if c.cancel.Cancelled() {
			return
		}
		c.cfg.Notifier.Notify(Notification{
			Title:       "Media device error",
			Description: fmt.Sprintf("%v", ev.Err),
		})
	})
	tap(transport.EventConnectionState, func(ev transport.Event) {
		c.log.Debug("connection state", "state", ev.State)
	})
	tap(transport.EventReconnecting, func(ev transport.Event) {
		c.log.Info("transport reconnecting", "attempt", ev.Attempt)
	})
	tap(transport.EventParticipantJoined, func(ev transport.Event) {
		if ev.Participant != nil {
			c.log.Debug("participant joined", "identity", ev.Participant.Identity)
		}
	})
	tap(transport.EventParticipantLeft, func(ev transport.Event) {
		if ev.Participant != nil {
			c.log.Debug("participant left", "identity", ev.Participant.Identity)
		}
	})
}

// End requests a logical end of session. Idempotent. The transport's own
// disconnected event, not this call, is the authority that flips the
// state to Disconnected.
func (c *Controller) End() {
	c.mu.Lock()
	if c.ended || (c.state != Active && c.state != Connecting) {
		c.mu.Unlock()
		return
	}
	c.ended = true
	sess := c.sess
	if c.state == Active {
		c.state = Disconnecting
	}
	c.mu.Unlock()

	if sess != nil {
		go func() {
			if err := sess.Disconnect(); err != nil {
				c.log.Debug("disconnect on end", "err", err)
			}
		}()
	}
}

// Close tears the controller down. The cancellation token fires before
// the transport close so a rapid teardown/restart race cannot surface a
// stale connect error. Every tap attached in setup is detached; a detach
// the transport version does not support is swallowed.
func (c *Controller) Close() error {
	c.cancel.Cancel()

	c.mu.Lock()
	taps := c.taps
	c.taps = nil
	sess := c.sess
	c.sess = nil
	if c.state != Idle {
		c.state = Disconnected
	}
	c.mu.Unlock()

	for _, t := range taps {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Debug("tap detach panic swallowed", "event", string(t.name))
				}
			}()
			t.detach()
		}()
	}

	if sess != nil {
		if err := sess.Disconnect(); err != nil {
			c.log.Debug("disconnect on close", "err", err)
		}
	}
	if err := c.cfg.Device.Disable(); err != nil {
		c.log.Debug("device disable", "err", err)
	}
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
