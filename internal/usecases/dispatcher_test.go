package usecases

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

type recordingMessenger struct {
	mu    sync.Mutex
	sends map[string][]string
}

func (m *recordingMessenger) Send(ctx context.Context, identifier, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sends == nil {
		m.sends = make(map[string][]string)
	}
	m.sends[identifier] = append(m.sends[identifier], text)
}

func newDispatcherFixture(t *testing.T) (*ExecutionDispatcher, *fakeResolver, *fakeOracle, *fakeAccounts, *fakeHistory, *recordingMessenger) {
	t.Helper()

	resolver := newFakeResolver()
	oracle := newFakeOracle()
	accounts := newFakeAccounts()
	history := &fakeHistory{}
	messenger := &recordingMessenger{}
	claims := newFakeClaims()
	treasury := &entities.SigningHandle{Identifier: "treasury", Address: "0xtreasury", Key: []byte("tkey")}
	escrow := NewClaimEscrowService(testLogger(), claims, history, oracle, accounts, treasury, 72*time.Hour)

	dispatcher := NewExecutionDispatcher(testLogger(), resolver, oracle, escrow, accounts, history, messenger)
	return dispatcher, resolver, oracle, accounts, history, messenger
}

func TestExecuteDirectTransfer(t *testing.T) {
	dispatcher, resolver, oracle, accounts, history, messenger := newDispatcherFixture(t)
	resolver.add("alice", "0xaaa", ether(5).String())
	oracle.setBalance("0xaaa", ether(5))

	tx := pendingTx(ether(1))
	tx.RecipientIdentifier = "bob"

	receipt, err := dispatcher.Execute(context.Background(), tx)
	require.NoError(t, err)
	require.NotEmpty(t, receipt.TxHash)
	require.Equal(t, entities.KindDirectTransfer, receipt.Kind)

	subs := oracle.submitted()
	require.Len(t, subs, 1)
	require.Equal(t, "0xbbb", subs[0].to)

	require.Equal(t, 1, history.count())
	require.Len(t, messenger.sends["bob"], 1)

	// The cached balance was refreshed from the chain.
	require.Equal(t, ether(5).String(), accounts.balances["0xaaa"])
}

func TestExecuteFailedSubmissionIsNotRetried(t *testing.T) {
	dispatcher, resolver, oracle, accounts, history, _ := newDispatcherFixture(t)
	resolver.add("alice", "0xaaa", ether(5).String())
	oracle.setBalance("0xaaa", ether(5))
	oracle.submitErr = errors.New("nonce too low")

	_, err := dispatcher.Execute(context.Background(), pendingTx(ether(1)))

	var execErr *entities.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Empty(t, oracle.submitted())
	require.Zero(t, history.count())

	// Balance still refreshed: a failed submission may have cost gas.
	require.Equal(t, ether(5).String(), accounts.balances["0xaaa"])
}

func TestExecuteEscrowCreate(t *testing.T) {
	dispatcher, resolver, oracle, _, history, _ := newDispatcherFixture(t)
	resolver.add("alice", "0xaaa", ether(5).String())
	oracle.setBalance("0xaaa", ether(5))

	tx := pendingTx(ether(1))
	tx.Kind = entities.KindEscrowCreate
	tx.RecipientIdentifier = "charlie"
	tx.RecipientAddress = ""

	receipt, err := dispatcher.Execute(context.Background(), tx)
	require.NoError(t, err)
	require.NotEmpty(t, receipt.ClaimToken)
	require.NotEmpty(t, receipt.ClaimID)
	require.False(t, receipt.ClaimExpiresAt.IsZero())

	// The funding transfer landed on the treasury.
	subs := oracle.submitted()
	require.Len(t, subs, 1)
	require.Equal(t, "0xtreasury", subs[0].to)
	require.Equal(t, 1, history.count())
}

func TestExecuteContractSwapSendsNoValue(t *testing.T) {
	dispatcher, resolver, oracle, _, _, _ := newDispatcherFixture(t)
	resolver.add("alice", "0xaaa", ether(5).String())
	oracle.setBalance("0xaaa", ether(5))

	tx := pendingTx(ether(1))
	tx.Kind = entities.KindContractSwap
	tx.ContractAddress = "0xpool"

	receipt, err := dispatcher.Execute(context.Background(), tx)
	require.NoError(t, err)
	require.NotEmpty(t, receipt.TxHash)

	subs := oracle.submitted()
	require.Len(t, subs, 1)
	require.Equal(t, "0xpool", subs[0].to)
	require.Zero(t, subs[0].amount.Cmp(big.NewInt(0)))
}

func TestExecuteContractDepositSendsValue(t *testing.T) {
	dispatcher, resolver, oracle, _, _, _ := newDispatcherFixture(t)
	resolver.add("alice", "0xaaa", ether(5).String())
	oracle.setBalance("0xaaa", ether(5))

	tx := pendingTx(ether(1))
	tx.Kind = entities.KindContractDeposit
	tx.ContractAddress = "0xvault"

	_, err := dispatcher.Execute(context.Background(), tx)
	require.NoError(t, err)

	subs := oracle.submitted()
	require.Len(t, subs, 1)
	require.Equal(t, ether(1), subs[0].amount)
}

var _ ports.ChainOracle = (*fakeOracle)(nil)
var _ ports.WalletResolver = (*fakeResolver)(nil)
