package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

func newEscrowFixture(t *testing.T) (*ClaimEscrowService, *fakeClaims, *fakeOracle, *fakeHistory) {
	t.Helper()

	claims := newFakeClaims()
	history := &fakeHistory{}
	oracle := newFakeOracle()
	treasury := &entities.SigningHandle{Identifier: "treasury", Address: "0xtreasury", Key: []byte("tkey")}

	service := NewClaimEscrowService(testLogger(), claims, history, oracle, newFakeAccounts(), treasury, 72*time.Hour)
	return service, claims, oracle, history
}

func escrowSender() (*entities.Account, *entities.SigningHandle) {
	account := &entities.Account{Identifier: "alice", Address: "0xaaa", CachedBalance: ether(5).String()}
	signer := &entities.SigningHandle{Identifier: "alice", Address: "0xaaa", Key: []byte("akey")}
	return account, signer
}

func TestCreateClaimLink(t *testing.T) {
	service, claims, oracle, history := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	sender, signer := escrowSender()

	created, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "Charlie", ether(1))
	require.NoError(t, err)
	require.NotEmpty(t, created.Token)
	require.Equal(t, entities.ClaimPending, created.Link.Status)
	require.Equal(t, "charlie", created.Link.RecipientIdentifier)
	require.WithinDuration(t, time.Now().Add(72*time.Hour), created.Link.ExpiresAt, time.Minute)

	// Funds moved to the treasury.
	subs := oracle.submitted()
	require.Len(t, subs, 1)
	require.Equal(t, "0xtreasury", subs[0].to)
	require.Equal(t, ether(1), subs[0].amount)

	// Only the hash is stored, and it matches the returned token.
	stored, err := claims.FindByTokenHash(context.Background(), HashToken(created.Token))
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotEqual(t, created.Token, stored.TokenHash)

	require.Equal(t, 1, history.count())
}

func TestCreateClaimLinkNeedsGasHeadroom(t *testing.T) {
	service, claims, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(1)) // covers the amount but not the funding gas
	sender, signer := escrowSender()

	_, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))

	var balanceErr *entities.InsufficientBalanceError
	require.ErrorAs(t, err, &balanceErr)
	require.Equal(t, oracle.fee, balanceErr.Shortfall())
	require.Empty(t, oracle.submitted())
	require.Empty(t, claims.links)
}

func TestCreateClaimLinkInsufficientBalance(t *testing.T) {
	service, claims, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(1))
	sender, signer := escrowSender()

	_, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(2))

	var balanceErr *entities.InsufficientBalanceError
	require.ErrorAs(t, err, &balanceErr)
	require.Empty(t, oracle.submitted())
	require.Empty(t, claims.links)
}

func TestClaimPaysNetOfGas(t *testing.T) {
	service, _, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	sender, signer := escrowSender()

	created, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))
	require.NoError(t, err)

	receipt, err := service.Claim(context.Background(), created.Token, "0xccc")
	require.NoError(t, err)

	expectedNet := ether(1).Sub(ether(1), oracle.fee)
	require.Equal(t, expectedNet, receipt.NetAmount)
	require.NotEmpty(t, receipt.TxHash)

	subs := oracle.submitted()
	require.Len(t, subs, 2)
	require.Equal(t, "0xtreasury", subs[1].from)
	require.Equal(t, "0xccc", subs[1].to)
	require.Equal(t, expectedNet, subs[1].amount)
}

func TestClaimAtMostOnce(t *testing.T) {
	service, _, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	sender, signer := escrowSender()

	created, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))
	require.NoError(t, err)

	_, err = service.Claim(context.Background(), created.Token, "0xccc")
	require.NoError(t, err)

	_, err = service.Claim(context.Background(), created.Token, "0xddd")
	require.ErrorIs(t, err, entities.ErrClaimAlreadyClaimed)
}

func TestClaimUnknownToken(t *testing.T) {
	service, _, _, _ := newEscrowFixture(t)

	_, err := service.Claim(context.Background(), "no-such-token", "0xccc")
	require.ErrorIs(t, err, entities.ErrClaimNotFound)
}

func TestClaimExpired(t *testing.T) {
	service, _, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	sender, signer := escrowSender()

	created, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))
	require.NoError(t, err)

	service.now = func() time.Time { return time.Now().Add(73 * time.Hour) }

	_, err = service.Claim(context.Background(), created.Token, "0xccc")
	require.ErrorIs(t, err, entities.ErrClaimExpired)
}

func TestClaimNetClampedAtZero(t *testing.T) {
	service, claims, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	oracle.fee = ether(2) // gas dwarfs the escrowed amount
	sender, signer := escrowSender()

	created, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))
	require.NoError(t, err)

	receipt, err := service.Claim(context.Background(), created.Token, "0xccc")
	require.NoError(t, err)
	require.Zero(t, receipt.NetAmount.Sign())
	require.Empty(t, receipt.TxHash)

	// Funding transfer only; no payout was submitted.
	require.Len(t, oracle.submitted(), 1)

	stored, err := claims.FindByTokenHash(context.Background(), HashToken(created.Token))
	require.NoError(t, err)
	require.Equal(t, entities.ClaimClaimed, stored.Status)
}

func TestSweepExpiredRefundsOnce(t *testing.T) {
	service, claims, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	sender, signer := escrowSender()

	created, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))
	require.NoError(t, err)

	service.now = func() time.Time { return time.Now().Add(73 * time.Hour) }

	refunded, err := service.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, refunded)

	stored, err := claims.FindByTokenHash(context.Background(), HashToken(created.Token))
	require.NoError(t, err)
	require.Equal(t, entities.ClaimRefunded, stored.Status)

	// Refund went back to the sender in full.
	subs := oracle.submitted()
	require.Len(t, subs, 2)
	require.Equal(t, "0xaaa", subs[1].to)
	require.Equal(t, ether(1), subs[1].amount)

	// A second sweep finds nothing.
	refunded, err = service.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, refunded)
}

func TestClaimAfterSweepRefundReportsExpired(t *testing.T) {
	service, _, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	sender, signer := escrowSender()

	created, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))
	require.NoError(t, err)

	// Four days on, the sweep has already sent the money back to the sender.
	service.now = func() time.Time { return time.Now().Add(96 * time.Hour) }

	refunded, err := service.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, refunded)

	// The claimer learns the link expired, not that someone else redeemed it.
	_, err = service.Claim(context.Background(), created.Token, "0xccc")
	require.ErrorIs(t, err, entities.ErrClaimExpired)
}

func TestTokenLockEvictedOnceTerminal(t *testing.T) {
	service, _, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	sender, signer := escrowSender()

	created, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))
	require.NoError(t, err)

	_, err = service.Claim(context.Background(), created.Token, "0xccc")
	require.NoError(t, err)

	_, held := service.locks.Load(HashToken(created.Token))
	require.False(t, held)
}

func TestSweepLeavesUnexpiredAlone(t *testing.T) {
	service, _, oracle, _ := newEscrowFixture(t)
	oracle.setBalance("0xaaa", ether(5))
	sender, signer := escrowSender()

	_, err := service.CreateClaimLink(context.Background(), sender, signer, "charlie", "", ether(1))
	require.NoError(t, err)

	refunded, err := service.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, refunded)
}

var _ ports.EscrowService = (*ClaimEscrowService)(nil)
