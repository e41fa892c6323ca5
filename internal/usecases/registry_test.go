package usecases

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

type stubDispatcher struct {
	calls   int32
	release chan struct{}
	err     error
}

func (d *stubDispatcher) Execute(ctx context.Context, tx *entities.PendingTransaction) (*ExecutionReceipt, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.release != nil {
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	return &ExecutionReceipt{Kind: tx.Kind, TxHash: "0xdeadbeef", Amount: tx.Amount, Fee: tx.EstimatedGas}, nil
}

func pendingTx(amount *big.Int) *entities.PendingTransaction {
	return &entities.PendingTransaction{
		Kind:             entities.KindDirectTransfer,
		SenderIdentifier: "alice",
		SenderAddress:    "0xaaa",
		RecipientAddress: "0xbbb",
		RecipientDisplay: "bob",
		Amount:           amount,
		EstimatedGas:     big.NewInt(1000),
		CreatedAt:        time.Now(),
	}
}

func newRegistryFixture(d Dispatcher) (*ConfirmationRegistry, *fakeOracle) {
	oracle := newFakeOracle()
	oracle.setBalance("0xaaa", ether(10))
	registry := NewConfirmationRegistry(testLogger(), oracle, time.Minute)
	registry.SetDispatcher(d)
	return registry, oracle
}

func TestParseReplyClassification(t *testing.T) {
	for _, text := range []string{"yes", "Yes", " YES ", "yep", "ok", "sure", "send it", "confirm", "yes!"} {
		require.Equal(t, ReplyAffirmative, ParseReply(text), text)
	}
	for _, text := range []string{"no", "No.", "cancel", "stop", "nope", "abort"} {
		require.Equal(t, ReplyNegative, ParseReply(text), text)
	}
	for _, text := range []string{"", "maybe", "send 5 to bob", "yess"} {
		require.Equal(t, ReplyUnknown, ParseReply(text), text)
	}
}

func TestConfirmWithNothingPending(t *testing.T) {
	registry, _ := newRegistryFixture(&stubDispatcher{})

	_, err := registry.Confirm(context.Background(), "alice", "yes")
	require.ErrorIs(t, err, entities.ErrNothingPending)
}

func TestConfirmUnrecognizedReplyKeepsPending(t *testing.T) {
	registry, _ := newRegistryFixture(&stubDispatcher{})
	registry.Put("alice", pendingTx(ether(1)))

	_, err := registry.Confirm(context.Background(), "alice", "maybe later")
	require.ErrorIs(t, err, entities.ErrUnrecognizedReply)
	require.NotNil(t, registry.Pending("alice"))
}

func TestConfirmNegativeCancels(t *testing.T) {
	dispatcher := &stubDispatcher{}
	registry, _ := newRegistryFixture(dispatcher)
	registry.Put("alice", pendingTx(ether(1)))

	outcome, err := registry.Confirm(context.Background(), "alice", "no")
	require.NoError(t, err)
	require.True(t, outcome.Cancelled)
	require.Nil(t, registry.Pending("alice"))
	require.Zero(t, atomic.LoadInt32(&dispatcher.calls))
}

func TestConfirmAffirmativeDispatchesAndDrops(t *testing.T) {
	dispatcher := &stubDispatcher{}
	registry, _ := newRegistryFixture(dispatcher)
	registry.Put("alice", pendingTx(ether(1)))

	outcome, err := registry.Confirm(context.Background(), "alice", "yes")
	require.NoError(t, err)
	require.False(t, outcome.Cancelled)
	require.Equal(t, "0xdeadbeef", outcome.Receipt.TxHash)
	require.EqualValues(t, 1, atomic.LoadInt32(&dispatcher.calls))
	require.Nil(t, registry.Pending("alice"))
}

func TestConcurrentConfirmDispatchesOnce(t *testing.T) {
	dispatcher := &stubDispatcher{release: make(chan struct{})}
	registry, _ := newRegistryFixture(dispatcher)
	registry.Put("alice", pendingTx(ether(1)))

	firstDone := make(chan error, 1)
	go func() {
		_, err := registry.Confirm(context.Background(), "alice", "yes")
		firstDone <- err
	}()

	// Wait until the first confirm is inside the dispatcher.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&dispatcher.calls) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := registry.Confirm(context.Background(), "alice", "yes")
	require.ErrorIs(t, err, entities.ErrAlreadyProcessing)

	close(dispatcher.release)
	require.NoError(t, <-firstDone)
	require.EqualValues(t, 1, atomic.LoadInt32(&dispatcher.calls))
}

func TestCancelWhileExecutingRejected(t *testing.T) {
	dispatcher := &stubDispatcher{release: make(chan struct{})}
	registry, _ := newRegistryFixture(dispatcher)
	registry.Put("alice", pendingTx(ether(1)))

	done := make(chan struct{})
	go func() {
		registry.Confirm(context.Background(), "alice", "yes")
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&dispatcher.calls) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := registry.Cancel("alice")
	require.ErrorIs(t, err, entities.ErrAlreadyProcessing)

	close(dispatcher.release)
	<-done
}

func TestPendingExpiresLazily(t *testing.T) {
	registry, _ := newRegistryFixture(&stubDispatcher{})

	current := time.Now()
	registry.now = func() time.Time { return current }

	registry.Put("alice", &entities.PendingTransaction{
		Kind: entities.KindDirectTransfer, SenderAddress: "0xaaa",
		Amount: ether(1), EstimatedGas: big.NewInt(1000), CreatedAt: current,
	})
	require.NotNil(t, registry.Pending("alice"))

	current = current.Add(2 * time.Minute)
	require.Nil(t, registry.Pending("alice"))

	_, err := registry.Confirm(context.Background(), "alice", "yes")
	require.ErrorIs(t, err, entities.ErrNothingPending)
}

func TestConfirmRevalidatesBalance(t *testing.T) {
	dispatcher := &stubDispatcher{}
	registry, oracle := newRegistryFixture(dispatcher)
	registry.Put("alice", pendingTx(ether(1)))

	// Balance drained between preparation and confirmation.
	oracle.setBalance("0xaaa", big.NewInt(0))

	_, err := registry.Confirm(context.Background(), "alice", "yes")

	var balanceErr *entities.InsufficientBalanceError
	require.ErrorAs(t, err, &balanceErr)
	require.Zero(t, atomic.LoadInt32(&dispatcher.calls))

	// The failed confirmation consumed the pending record.
	require.Nil(t, registry.Pending("alice"))
}
