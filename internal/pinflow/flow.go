// Package pinflow runs device-link flows: request a short code from the
// vendor, show it to the user with a countdown, and exchange it once the
// user reports they have entered it. A pending exchange arms a background
// poll that watches for the grant. The controller is vendor-agnostic; the
// Plex connector supplies the vendor calls.
package pinflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of one linking flow. Terminal states are success
// and error; a flow in error can be retried, which starts over from
// initializing with a fresh code.
type State string

const (
	StateInitializing State = "initializing"
	StatePinDisplay   State = "pin-display"
	StateWaiting      State = "waiting"
	StateSuccess      State = "success"
	StateError        State = "error"
)

// Code is one linking code issued by a vendor.
type Code struct {
	Ref       string
	Code      string
	ExpiresIn time.Duration
}

// Vendor is the device-auth surface a connector exposes to the controller.
type Vendor interface {
	// RequestCode asks for a fresh linking code.
	RequestCode(ctx context.Context) (Code, error)
	// CheckCode polls one code. granted is false while the user has not
	// approved it yet; err is reserved for transport failures.
	CheckCode(ctx context.Context, ref string) (token string, granted bool, err error)
}

// Options tune the controller's timers. The defaults suit production; tests
// shrink them.
type Options struct {
	PollInterval time.Duration
	TickInterval time.Duration
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		// Vendor-minimum spacing between background polls.
		o.PollInterval = 5 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Snapshot is the externally visible state of a flow.
type Snapshot struct {
	ID        string `json:"id"`
	State     State  `json:"state"`
	Code      string `json:"code,omitempty"`
	Remaining int    `json:"remaining_seconds"`
	Error     string `json:"error,omitempty"`
}

// Flow is one linking attempt. All mutation happens under mu; the timer
// goroutine and poll goroutines carry the generation they were started
// under, and any result arriving with an old generation is dropped.
type Flow struct {
	ID string

	vendor Vendor
	opts   Options

	mu         sync.Mutex
	state      State
	code       Code
	remaining  int
	token      string
	errMsg     string
	generation int
	pollArmed  bool
	polling    bool
	disposed   bool
	cancel     context.CancelFunc
}

// Start creates a flow and begins requesting a code.
func Start(ctx context.Context, vendor Vendor, opts Options) *Flow {
	f := &Flow{
		ID:     uuid.NewString(),
		vendor: vendor,
		opts:   opts.withDefaults(),
		state:  StateInitializing,
	}
	f.begin(ctx)
	return f
}

// begin starts one generation: a cancellable context, a code request, and
// on success the countdown/poll loop.
func (f *Flow) begin(ctx context.Context) {
	f.mu.Lock()
	f.generation++
	gen := f.generation
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.state = StateInitializing
	f.code = Code{}
	f.token = ""
	f.errMsg = ""
	f.pollArmed = false
	f.polling = false
	f.mu.Unlock()

	go f.run(runCtx, gen)
}

func (f *Flow) run(ctx context.Context, gen int) {
	code, err := f.vendor.RequestCode(ctx)
	if err != nil {
		f.fail(gen, err.Error())
		return
	}

	f.mu.Lock()
	if gen != f.generation {
		f.mu.Unlock()
		f.opts.Logger.Debug("stale flow response dropped", "flow_id", f.ID, "stage", "request")
		return
	}
	f.state = StatePinDisplay
	f.code = code
	f.remaining = int(code.ExpiresIn / time.Second)
	f.mu.Unlock()

	tick := time.NewTicker(f.opts.TickInterval)
	defer tick.Stop()
	poll := time.NewTicker(f.opts.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !f.countdown(gen) {
				return
			}
		case <-poll.C:
			f.maybePoll(ctx, gen)
		}
	}
}

// countdown decrements the remaining seconds; at zero the code has expired
// and the flow fails. Returns false when the loop should stop.
func (f *Flow) countdown(gen int) bool {
	f.mu.Lock()
	if gen != f.generation || f.terminalLocked() {
		f.mu.Unlock()
		return false
	}
	f.remaining--
	if f.remaining > 0 {
		f.mu.Unlock()
		return true
	}
	f.mu.Unlock()
	f.fail(gen, "linking code expired before it was approved")
	return false
}

// maybePoll launches one poll unless one is already in flight. Polls stay
// disarmed until a manual completion attempt has come back pending.
func (f *Flow) maybePoll(ctx context.Context, gen int) {
	f.mu.Lock()
	if gen != f.generation || !f.pollArmed || f.polling || f.terminalLocked() {
		f.mu.Unlock()
		return
	}
	f.polling = true
	ref := f.code.Ref
	f.mu.Unlock()

	go func() {
		token, granted, err := f.vendor.CheckCode(ctx, ref)
		f.deliver(gen, token, granted, err)
	}()
}

// deliver applies one poll result. Results from a disposed or restarted
// generation are dropped without inspection.
func (f *Flow) deliver(gen int, token string, granted bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.generation || f.terminalLocked() {
		f.opts.Logger.Debug("stale flow response dropped", "flow_id", f.ID, "stage", "poll")
		return
	}
	f.polling = false

	switch {
	case err != nil:
		// A single failed poll is not fatal; the next tick retries. Only
		// expiry or dispose ends the flow.
		f.opts.Logger.Debug("poll failed", "flow_id", f.ID, "error", err)
	case granted:
		f.state = StateSuccess
		f.token = token
		f.stopLocked()
	}
}

func (f *Flow) fail(gen int, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation || f.terminalLocked() {
		return
	}
	f.state = StateError
	f.errMsg = msg
	f.stopLocked()
}

// Complete is the user's "I've entered it" action: one direct exchange with
// the vendor, no waiting for a poll tick. Granted moves to success, pending
// moves to waiting and arms the background poll, a transport failure ends
// the flow. Outside pin-display/waiting it just reports the current state.
func (f *Flow) Complete(ctx context.Context) Snapshot {
	f.mu.Lock()
	if f.state != StatePinDisplay && f.state != StateWaiting {
		defer f.mu.Unlock()
		return f.snapshotLocked()
	}
	gen := f.generation
	ref := f.code.Ref
	f.mu.Unlock()

	token, granted, err := f.vendor.CheckCode(ctx, ref)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.generation || f.terminalLocked() {
		f.opts.Logger.Debug("stale flow response dropped", "flow_id", f.ID, "stage", "complete")
		return f.snapshotLocked()
	}

	switch {
	case err != nil:
		f.state = StateError
		f.errMsg = err.Error()
		f.stopLocked()
	case granted:
		f.state = StateSuccess
		f.token = token
		f.stopLocked()
	default:
		f.state = StateWaiting
		f.pollArmed = true
	}
	return f.snapshotLocked()
}

// Snapshot returns the current externally visible state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	return Snapshot{
		ID:        f.ID,
		State:     f.state,
		Code:      f.code.Code,
		Remaining: max(f.remaining, 0),
		Error:     f.errMsg,
	}
}

// Token returns the granted token. Only valid in the success state.
func (f *Flow) Token() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateSuccess {
		return "", false
	}
	return f.token, true
}

// Retry restarts a failed flow with a fresh code. A no-op in any other
// state.
func (f *Flow) Retry(ctx context.Context) bool {
	f.mu.Lock()
	if f.state != StateError || f.disposed {
		f.mu.Unlock()
		return false
	}
	f.mu.Unlock()
	f.begin(ctx)
	return true
}

// Dispose cancels the timers and marks the flow dead. Any response still
// in flight is dropped when it arrives. Idempotent.
func (f *Flow) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed {
		return
	}
	f.disposed = true
	f.generation++
	if f.state != StateSuccess && f.state != StateError {
		f.state = StateError
		f.errMsg = "linking was cancelled"
	}
	f.stopLocked()
}

func (f *Flow) terminalLocked() bool {
	return f.state == StateSuccess || f.state == StateError
}

func (f *Flow) stopLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}
