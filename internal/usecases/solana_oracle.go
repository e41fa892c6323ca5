package usecases

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.openly.dev/pointy"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

// Conversion between the 1e18-scale internal unit and lamports (1e9 per SOL).
var lamportScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)

const fallbackFeeLamports = 5000

// SolanaOracle talks to a Solana cluster over JSON-RPC. Balances and amounts
// cross the boundary in the internal 1e18-scale unit and are rescaled to
// lamports here.
type SolanaOracle struct {
	logger *slog.Logger
	client *rpc.Client
}

func NewSolanaOracle(logger *slog.Logger, rpcURL string) *SolanaOracle {
	return &SolanaOracle{
		logger: logger,
		client: rpc.New(rpcURL),
	}
}

func lamportsToInternal(lamports uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(lamports), lamportScale)
}

func internalToLamports(amount *big.Int) uint64 {
	return new(big.Int).Quo(amount, lamportScale).Uint64()
}

func (o *SolanaOracle) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid Solana address %s: %w", address, err)
	}

	result, err := o.client.GetBalance(ctx, pubkey, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s: %w", address, err)
	}

	return lamportsToInternal(result.Value), nil
}

// EstimateCost asks the cluster to price a transfer message. When the fee
// endpoint has no answer the flat base fee is assumed.
func (o *SolanaOracle) EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error) {
	fromKey, err := solana.PublicKeyFromBase58(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address %s: %w", from, err)
	}
	toKey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		// Recipient may be unresolved yet (escrow path); price against the
		// sender itself, the fee does not depend on the destination.
		toKey = fromKey
	}

	recent, err := o.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(internalToLamports(amount), fromKey, toKey).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(fromKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build fee probe transaction: %w", err)
	}

	msgData, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	feeResult, err := o.client.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(msgData), rpc.CommitmentFinalized)
	if err != nil || feeResult == nil || feeResult.Value == nil {
		o.logger.Debug("Fee endpoint unavailable, using base fee", "error", err)
		return lamportsToInternal(fallbackFeeLamports), nil
	}

	return lamportsToInternal(*feeResult.Value), nil
}

func (o *SolanaOracle) SubmitTransfer(ctx context.Context, signer *entities.SigningHandle, to string, amount *big.Int) (string, error) {
	privKey := solana.PrivateKey(ed25519.NewKeyFromSeed(signer.Key))
	fromKey := privKey.PublicKey()

	toKey, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address %s: %w", to, err)
	}

	recent, err := o.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(internalToLamports(amount), fromKey, toKey).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(fromKey),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(fromKey) {
			return &privKey
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := o.client.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	o.logger.Info("Transaction sent",
		"from", fromKey.String(),
		"to", to,
		"amount", amount.String(),
		"signature", sig.String())

	return sig.String(), nil
}

// CallContract is not meaningful on Solana in the EVM sense; program
// interactions need per-program instruction builders.
func (o *SolanaOracle) CallContract(ctx context.Context, signer *entities.SigningHandle, contract string, data []byte, amount *big.Int) (string, error) {
	return "", fmt.Errorf("contract calls are not supported on the solana network")
}

// GetTokenBalance sums the owner's SPL token accounts for the given mint.
func (o *SolanaOracle) GetTokenBalance(ctx context.Context, owner, mint string) (*big.Int, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner address %s: %w", owner, err)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint address %s: %w", mint, err)
	}

	accounts, err := o.client.GetTokenAccountsByOwner(ctx, ownerKey,
		&rpc.GetTokenAccountsConfig{Mint: &mintKey},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentFinalized,
			Encoding:   solana.EncodingBase64,
			DataSlice: &rpc.DataSlice{
				Offset: pointy.Uint64(0),
				Length: pointy.Uint64(165),
			},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list token accounts: %w", err)
	}

	total := new(big.Int)
	for _, acc := range accounts.Value {
		var tokenAccount token.Account
		if err = bin.NewBinDecoder(acc.Account.Data.GetBinary()).Decode(&tokenAccount); err != nil {
			o.logger.Warn("Failed to decode token account", "account", acc.Pubkey.String(), "error", err)
			continue
		}
		total.Add(total, new(big.Int).SetUint64(tokenAccount.Amount))
	}

	return total, nil
}
