package usecases

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/internal/shared"
)

// Network names the address and signing scheme for derived wallets.
type Network string

const (
	NetworkEVM    Network = "evm"
	NetworkSolana Network = "solana"
)

// TreasuryWalletIndex is the reserved derivation index for the escrow
// treasury; user wallets start above it.
const TreasuryWalletIndex = 0

type accountCreator interface {
	AccountsRepository
	Insert(ctx context.Context, account *entities.Account) error
	NextWalletIndex(ctx context.Context) (uint32, error)
}

// HDWalletResolver maps chat identifiers to deterministic wallets derived
// from a single BIP-39 seed. Key material never leaves this type except as a
// short-lived signing handle.
type HDWalletResolver struct {
	logger    *slog.Logger
	masterKey *bip32.Key
	network   Network
	accounts  accountCreator

	mu sync.Mutex
}

func NewHDWalletResolver(logger *slog.Logger, seed string, network Network, accounts accountCreator) (*HDWalletResolver, error) {
	seedBytes := bip39.NewSeed(seed, "")
	masterKey, err := bip32.NewMasterKey(seedBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	return &HDWalletResolver{
		logger:    logger,
		masterKey: masterKey,
		network:   network,
		accounts:  accounts,
	}, nil
}

// Resolve returns the stored account for an identifier, or
// entities.ErrAccountNotFound when none exists.
func (r *HDWalletResolver) Resolve(ctx context.Context, identifier string) (*entities.Account, error) {
	identifier = shared.NormalizeIdentifier(identifier)

	account, err := r.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if account == nil {
		return nil, entities.ErrAccountNotFound
	}
	return account, nil
}

// Register derives a fresh wallet for a new identifier and persists it.
// Registering an existing identifier returns the stored account unchanged.
func (r *HDWalletResolver) Register(ctx context.Context, identifier string) (*entities.Account, error) {
	identifier = shared.NormalizeIdentifier(identifier)

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	index, err := r.accounts.NextWalletIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate wallet index: %w", err)
	}
	if index <= TreasuryWalletIndex {
		index = TreasuryWalletIndex + 1
	}

	address, _, err := r.derive(index)
	if err != nil {
		return nil, err
	}

	account := &entities.Account{
		Identifier:     identifier,
		Address:        address,
		WalletIndex:    index,
		DerivationPath: fmt.Sprintf("m/%d", index),
		CachedBalance:  "0",
	}
	if err = r.accounts.Insert(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to persist account: %w", err)
	}

	r.logger.Info("Generated new wallet", "identifier", identifier, "address", address, "index", index)
	return account, nil
}

// Signer rebuilds the signing handle for a known account from its derivation
// index.
func (r *HDWalletResolver) Signer(ctx context.Context, identifier string) (*entities.SigningHandle, error) {
	account, err := r.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	address, key, err := r.derive(account.WalletIndex)
	if err != nil {
		return nil, err
	}
	if address != account.Address {
		return nil, fmt.Errorf("derived address mismatch for %s: got %s, stored %s",
			identifier, address, account.Address)
	}

	return &entities.SigningHandle{
		Identifier: account.Identifier,
		Address:    address,
		Key:        key,
	}, nil
}

// Treasury derives the escrow custody wallet at the reserved index.
func (r *HDWalletResolver) Treasury() (*entities.SigningHandle, error) {
	address, key, err := r.derive(TreasuryWalletIndex)
	if err != nil {
		return nil, err
	}
	return &entities.SigningHandle{
		Identifier: "treasury",
		Address:    address,
		Key:        key,
	}, nil
}

func (r *HDWalletResolver) derive(index uint32) (string, []byte, error) {
	childKey, err := r.masterKey.NewChildKey(index)
	if err != nil {
		return "", nil, fmt.Errorf("failed to derive child key %d: %w", index, err)
	}

	switch r.network {
	case NetworkSolana:
		privKey := ed25519.NewKeyFromSeed(childKey.Key)
		pubKey := privKey.Public().(ed25519.PublicKey)
		address := solana.PublicKeyFromBytes(pubKey).String()
		return address, childKey.Key, nil

	default:
		privKey, err := crypto.ToECDSA(childKey.Key)
		if err != nil {
			return "", nil, fmt.Errorf("failed to build ECDSA key: %w", err)
		}
		address := crypto.PubkeyToAddress(privKey.PublicKey).Hex()
		return address, childKey.Key, nil
	}
}
