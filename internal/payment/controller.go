// Package payment drives the money-movement flow: pick a recipient (or start
// a deposit), enter an amount, submit exactly once, reconcile cached views.
//
// The controller is a small state machine:
//
//	Idle -> RecipientChosen -> AmountEntry -> Submitting -> (settled) -> Idle
//
// Entry points feed it resolved candidates as events, which is what lets a
// late-arriving QR scan open the flow after the scanning surface has closed.
// Writes are single-flight: at most one submission is in flight system-wide,
// and a settled submission, success or failure, always resets to Idle.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bankpay/internal/recipient"
)

// State is the controller's current position in the flow.
type State int

const (
	StateIdle State = iota
	StateRecipientChosen
	StateAmountEntry
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecipientChosen:
		return "recipient_chosen"
	case StateAmountEntry:
		return "amount_entry"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// Kind distinguishes the two mutating operations.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindDeposit  Kind = "deposit"
)

// Cache keys emitted after a successful settlement. The sink owns refetching;
// the controller only names what went stale.
const (
	KeyMe           = "me"
	KeyUsers        = "users"
	KeyTransactions = "transactions"
)

var (
	// ErrBusy: a submission is in flight; new flow events and confirms are
	// refused until it settles.
	ErrBusy = errors.New("payment: submission in flight")
	// ErrNotIdle: a new flow can only start from Idle.
	ErrNotIdle = errors.New("payment: flow already started")
	// ErrNoFlow: confirm or cancel with no flow open.
	ErrNoFlow = errors.New("payment: no flow in progress")
	// ErrInvalidAmount: the typed value is not a positive decimal.
	ErrInvalidAmount = errors.New("payment: amount must be a positive number")
)

const (
	genericTransferError = "An error occurred while sending money"
	genericDepositError  = "An error occurred while depositing money"
)

// Service submits payments to the remote system. idemKey is a client-minted
// token identifying this submission; the remote may use it to dedupe retries.
type Service interface {
	SubmitTransfer(ctx context.Context, toUserID string, amount decimal.Decimal, idemKey string) error
	SubmitDeposit(ctx context.Context, amount decimal.Decimal, idemKey string) error
}

// InvalidationSink receives the names of cached views made stale by a settled
// submission. Implementations refetch; the controller never does.
type InvalidationSink interface {
	Invalidate(keys ...string)
}

// Settlement is the terminal outcome of one submission.
type Settlement struct {
	OK      bool
	Message string
}

// Pending is the in-flight submission. At most one exists at a time.
type Pending struct {
	RecipientID    string
	Amount         decimal.Decimal
	Kind           Kind
	IdempotencyKey string
}

// Controller coordinates the three entry points into one confirm/submit/
// reconcile pipeline. Safe for use from UI events and network callbacks
// arriving on different goroutines.
type Controller struct {
	svc  Service
	sink InvalidationSink
	log  *slog.Logger

	mu        sync.Mutex
	state     State
	kind      Kind
	candidate *recipient.Candidate
	amount    string
	pending   *Pending
}

func NewController(svc Service, sink InvalidationSink, log *slog.Logger) *Controller {
	return &Controller{
		svc:   svc,
		sink:  sink,
		log:   log,
		state: StateIdle,
	}
}

// State reports the current flow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Recipient returns the current candidate, nil outside a transfer flow.
func (c *Controller) Recipient() *recipient.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.candidate
}

// Amount returns the typed amount value.
func (c *Controller) Amount() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.amount
}

// ChooseRecipient opens a transfer flow for a resolved candidate. This is an
// event, not only a direct call: a QR scan delivered after the scanner closed
// still lands here. Only accepted at Idle; the recipient step is purely
// presentational so the flow advances straight to amount entry.
func (c *Controller) ChooseRecipient(cand *recipient.Candidate) error {
	if cand == nil {
		return ErrNoFlow
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		return ErrBusy
	}
	if c.state != StateIdle {
		return ErrNotIdle
	}

	c.candidate = cand
	c.kind = KindTransfer
	c.amount = ""
	c.state = StateAmountEntry
	c.log.Debug("transfer flow opened",
		slog.String("recipient", cand.Username),
		slog.String("source", string(cand.Source)),
	)
	return nil
}

// BeginDeposit opens a deposit flow. Deposits skip recipient resolution
// entirely and go straight to amount entry.
func (c *Controller) BeginDeposit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSubmitting {
		return ErrBusy
	}
	if c.state != StateIdle {
		return ErrNotIdle
	}

	c.candidate = nil
	c.kind = KindDeposit
	c.amount = ""
	c.state = StateAmountEntry
	c.log.Debug("deposit flow opened")
	return nil
}

// SetAmount replaces the typed amount value.
func (c *Controller) SetAmount(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAmountEntry {
		c.amount = s
	}
}

// QuickAdd accumulates a fixed denomination onto the current typed value.
// An unparseable current value counts as zero, matching how the quick-add
// buttons behave on an empty field.
func (c *Controller) QuickAdd(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAmountEntry {
		return
	}
	current, err := decimal.NewFromString(c.amount)
	if err != nil {
		current = decimal.Zero
	}
	c.amount = current.Add(decimal.NewFromInt(n)).String()
}

// Cancel abandons a local (not yet submitted) flow and returns to Idle.
// An in-flight submission cannot be cancelled.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle:
		return nil
	case StateSubmitting:
		return ErrBusy
	default:
		c.reset()
		return nil
	}
}

// Confirm validates the typed amount and submits. The amount-entry surface is
// done the moment Confirm returns nil: state is Submitting, the candidate and
// amount are consumed, and the network call proceeds on its own goroutine.
// The returned channel delivers exactly one Settlement; by the time it does,
// the controller is back at Idle.
//
// Validation failures leave the flow at AmountEntry so the user can fix the
// value. A Confirm while a submission is in flight returns ErrBusy and issues
// no second network call.
func (c *Controller) Confirm(ctx context.Context) (<-chan Settlement, error) {
	c.mu.Lock()

	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return nil, ErrBusy
	case StateAmountEntry:
	default:
		c.mu.Unlock()
		return nil, ErrNoFlow
	}

	amount, err := decimal.NewFromString(c.amount)
	if err != nil || !amount.IsPositive() {
		c.mu.Unlock()
		return nil, ErrInvalidAmount
	}

	pending := &Pending{
		Amount:         amount,
		Kind:           c.kind,
		IdempotencyKey: uuid.NewString(),
	}
	if c.kind == KindTransfer {
		if c.candidate == nil {
			c.mu.Unlock()
			return nil, ErrNoFlow
		}
		pending.RecipientID = c.candidate.UserID
	}

	// Optimistic close: the entry surface is dismissed before the network
	// result is known.
	c.pending = pending
	c.candidate = nil
	c.amount = ""
	c.state = StateSubmitting
	c.mu.Unlock()

	c.log.Info("submitting payment",
		slog.String("kind", string(pending.Kind)),
		slog.String("amount", pending.Amount.String()),
		slog.String("idempotency_key", pending.IdempotencyKey),
	)

	done := make(chan Settlement, 1)
	go c.submit(ctx, pending, done)
	return done, nil
}

func (c *Controller) submit(ctx context.Context, p *Pending, done chan<- Settlement) {
	var err error
	if p.Kind == KindDeposit {
		err = c.svc.SubmitDeposit(ctx, p.Amount, p.IdempotencyKey)
	} else {
		err = c.svc.SubmitTransfer(ctx, p.RecipientID, p.Amount, p.IdempotencyKey)
	}

	var s Settlement
	if err != nil {
		s = Settlement{OK: false, Message: failureMessage(p.Kind, err)}
		c.log.Error("payment failed", slog.String("kind", string(p.Kind)), "error", err)
	} else {
		s = Settlement{OK: true}
		c.log.Info("payment settled", slog.String("kind", string(p.Kind)))
	}

	c.mu.Lock()
	c.pending = nil
	c.reset()
	c.mu.Unlock()

	if s.OK {
		// Reconcile every cached view against the source of truth.
		c.sink.Invalidate(KeyMe, KeyUsers, KeyTransactions)
	}
	done <- s
}

// reset returns the flow to Idle. Caller holds c.mu.
func (c *Controller) reset() {
	c.state = StateIdle
	c.candidate = nil
	c.amount = ""
	c.kind = ""
}

// Messenger exposes a user-facing message for a failed submission.
type Messenger interface {
	Message() string
}

func failureMessage(kind Kind, err error) string {
	var m Messenger
	if errors.As(err, &m) && m.Message() != "" {
		return m.Message()
	}
	if kind == KindDeposit {
		return genericDepositError
	}
	return genericTransferError
}
