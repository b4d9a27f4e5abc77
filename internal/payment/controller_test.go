package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bankpay/internal/recipient"
)

// fakeService counts submissions and can block to hold a flow in Submitting.
type fakeService struct {
	mu        sync.Mutex
	transfers int
	deposits  int
	lastTo    string
	lastAmt   decimal.Decimal
	lastKey   string
	err       error
	release   chan struct{} // when non-nil, submit blocks until closed
}

func (f *fakeService) SubmitTransfer(ctx context.Context, to string, amt decimal.Decimal, key string) error {
	f.mu.Lock()
	f.transfers++
	f.lastTo = to
	f.lastAmt = amt
	f.lastKey = key
	release := f.release
	err := f.err
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeService) SubmitDeposit(ctx context.Context, amt decimal.Decimal, key string) error {
	f.mu.Lock()
	f.deposits++
	f.lastAmt = amt
	f.lastKey = key
	release := f.release
	err := f.err
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return err
}

type fakeSink struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeSink) Invalidate(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, keys)
}

type remoteErr struct{ msg string }

func (e remoteErr) Error() string   { return "remote: " + e.msg }
func (e remoteErr) Message() string { return e.msg }

func newTestController(svc Service, sink InvalidationSink) *Controller {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewController(svc, sink, log)
}

func candidate() *recipient.Candidate {
	return &recipient.Candidate{Username: "bob", UserID: "u-bob", Source: recipient.SourceManual}
}

func TestTransferHappyPath(t *testing.T) {
	svc := &fakeService{}
	sink := &fakeSink{}
	c := newTestController(svc, sink)

	require.NoError(t, c.ChooseRecipient(candidate()))
	require.Equal(t, StateAmountEntry, c.State())

	c.SetAmount("25.50")
	done, err := c.Confirm(context.Background())
	require.NoError(t, err)

	// Optimistic close: surface state is already consumed.
	require.Empty(t, c.Amount())
	require.Nil(t, c.Recipient())

	s := <-done
	require.True(t, s.OK)
	require.Equal(t, StateIdle, c.State())
	require.Equal(t, 1, svc.transfers)
	require.Equal(t, "u-bob", svc.lastTo)
	require.True(t, svc.lastAmt.Equal(decimal.RequireFromString("25.50")))
	require.NotEmpty(t, svc.lastKey)

	require.Len(t, sink.calls, 1)
	require.Equal(t, []string{KeyMe, KeyUsers, KeyTransactions}, sink.calls[0])
}

func TestDepositSkipsRecipient(t *testing.T) {
	svc := &fakeService{}
	sink := &fakeSink{}
	c := newTestController(svc, sink)

	require.NoError(t, c.BeginDeposit())
	require.Equal(t, StateAmountEntry, c.State())
	require.Nil(t, c.Recipient())

	c.SetAmount("100")
	done, err := c.Confirm(context.Background())
	require.NoError(t, err)

	s := <-done
	require.True(t, s.OK)
	require.Equal(t, 1, svc.deposits)
	require.Zero(t, svc.transfers)
	require.Len(t, sink.calls, 1)
}

func TestSingleFlight(t *testing.T) {
	svc := &fakeService{release: make(chan struct{})}
	sink := &fakeSink{}
	c := newTestController(svc, sink)

	require.NoError(t, c.ChooseRecipient(candidate()))
	c.SetAmount("10")
	done, err := c.Confirm(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateSubmitting, c.State())

	// Everything that would start or submit a payment is refused.
	_, err = c.Confirm(context.Background())
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, c.ChooseRecipient(candidate()), ErrBusy)
	require.ErrorIs(t, c.BeginDeposit(), ErrBusy)
	require.ErrorIs(t, c.Cancel(), ErrBusy)

	close(svc.release)
	<-done
	require.Equal(t, 1, svc.transfers)
}

func TestInvalidAmountBlocksConfirm(t *testing.T) {
	svc := &fakeService{}
	c := newTestController(svc, &fakeSink{})

	require.NoError(t, c.ChooseRecipient(candidate()))

	for _, bad := range []string{"", "abc", "0", "-5", "1.2.3"} {
		c.SetAmount(bad)
		_, err := c.Confirm(context.Background())
		require.ErrorIs(t, err, ErrInvalidAmount, "amount=%q", bad)
		require.Equal(t, StateAmountEntry, c.State())
	}
	require.Zero(t, svc.transfers)
}

func TestFailureResetsToIdleWithServerMessage(t *testing.T) {
	svc := &fakeService{err: remoteErr{msg: "Insufficient funds"}}
	sink := &fakeSink{}
	c := newTestController(svc, sink)

	require.NoError(t, c.ChooseRecipient(candidate()))
	c.SetAmount("9999")
	done, err := c.Confirm(context.Background())
	require.NoError(t, err)

	s := <-done
	require.False(t, s.OK)
	require.Equal(t, "Insufficient funds", s.Message)

	// Failure never returns to AmountEntry; the flow restarts from scratch.
	require.Equal(t, StateIdle, c.State())
	require.Empty(t, c.Amount())
	require.Empty(t, sink.calls)
}

func TestFailureGenericMessages(t *testing.T) {
	svc := &fakeService{err: errors.New("dial tcp: connection refused")}
	c := newTestController(svc, &fakeSink{})

	require.NoError(t, c.ChooseRecipient(candidate()))
	c.SetAmount("5")
	done, _ := c.Confirm(context.Background())
	require.Equal(t, "An error occurred while sending money", (<-done).Message)

	require.NoError(t, c.BeginDeposit())
	c.SetAmount("5")
	done, _ = c.Confirm(context.Background())
	require.Equal(t, "An error occurred while depositing money", (<-done).Message)
}

func TestQuickAddAccumulates(t *testing.T) {
	c := newTestController(&fakeService{}, &fakeSink{})
	require.NoError(t, c.BeginDeposit())

	c.QuickAdd(10)
	c.QuickAdd(50)
	c.QuickAdd(100)
	require.Equal(t, "160", c.Amount())

	// Accumulates onto a typed value rather than replacing it.
	c.SetAmount("2.50")
	c.QuickAdd(10)
	require.Equal(t, "12.5", c.Amount())

	// Unparseable typed value counts as zero.
	c.SetAmount("garbage")
	c.QuickAdd(50)
	require.Equal(t, "50", c.Amount())
}

func TestLateQRCandidateOpensFlow(t *testing.T) {
	c := newTestController(&fakeService{}, &fakeSink{})

	// The scanning surface is long gone; the event still lands.
	events := make(chan *recipient.Candidate, 1)
	events <- &recipient.Candidate{Username: "carol", UserID: "u-carol", Source: recipient.SourceQR}

	select {
	case cand := <-events:
		require.NoError(t, c.ChooseRecipient(cand))
	case <-time.After(time.Second):
		t.Fatal("no scan event")
	}

	require.Equal(t, StateAmountEntry, c.State())
	require.Equal(t, recipient.SourceQR, c.Recipient().Source)
}

func TestChooseRecipientRefusedMidFlow(t *testing.T) {
	c := newTestController(&fakeService{}, &fakeSink{})

	require.NoError(t, c.ChooseRecipient(candidate()))
	require.ErrorIs(t, c.ChooseRecipient(candidate()), ErrNotIdle)
	require.ErrorIs(t, c.BeginDeposit(), ErrNotIdle)
}

func TestCancelReturnsToIdle(t *testing.T) {
	c := newTestController(&fakeService{}, &fakeSink{})

	require.NoError(t, c.Cancel()) // no-op at Idle

	require.NoError(t, c.ChooseRecipient(candidate()))
	c.SetAmount("10")
	require.NoError(t, c.Cancel())
	require.Equal(t, StateIdle, c.State())
	require.Empty(t, c.Amount())
	require.Nil(t, c.Recipient())
}

func TestIdempotencyKeysDifferPerSubmission(t *testing.T) {
	svc := &fakeService{}
	c := newTestController(svc, &fakeSink{})

	require.NoError(t, c.BeginDeposit())
	c.SetAmount("1")
	done, _ := c.Confirm(context.Background())
	<-done
	first := svc.lastKey

	require.NoError(t, c.BeginDeposit())
	c.SetAmount("1")
	done, _ = c.Confirm(context.Background())
	<-done

	require.NotEmpty(t, first)
	require.NotEqual(t, first, svc.lastKey)
}
