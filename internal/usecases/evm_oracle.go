package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

const nativeTransferGasLimit = 21000

// EVMOracle talks to an Ethereum-compatible chain over a single RPC endpoint.
type EVMOracle struct {
	logger *slog.Logger
	rpcURL string
}

func NewEVMOracle(logger *slog.Logger, rpcURL string) *EVMOracle {
	return &EVMOracle{logger: logger, rpcURL: rpcURL}
}

func (o *EVMOracle) dial(ctx context.Context) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, o.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}
	return client, nil
}

func (o *EVMOracle) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	client, err := o.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s: %w", address, err)
	}
	return balance, nil
}

// EstimateCost prices a plain value transfer at the current suggested gas
// price. Contract calls get their own estimate at submission time.
func (o *EVMOracle) EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error) {
	client, err := o.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	return new(big.Int).Mul(gasPrice, big.NewInt(nativeTransferGasLimit)), nil
}

func (o *EVMOracle) SubmitTransfer(ctx context.Context, signer *entities.SigningHandle, to string, amount *big.Int) (string, error) {
	client, err := o.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	privateKey, err := crypto.ToECDSA(signer.Key)
	if err != nil {
		return "", fmt.Errorf("failed to load private key: %w", err)
	}

	fromAddress := crypto.PubkeyToAddress(privateKey.PublicKey)

	nonce, err := client.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(
		nonce,
		common.HexToAddress(to),
		amount,
		nativeTransferGasLimit,
		gasPrice,
		nil,
	)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain ID: %w", err)
	}

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err = client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := signedTx.Hash().Hex()
	o.logger.Info("Transaction sent",
		"from", fromAddress.Hex(),
		"to", to,
		"amount", amount.String(),
		"tx_hash", txHash)

	return txHash, nil
}

func (o *EVMOracle) CallContract(ctx context.Context, signer *entities.SigningHandle, contract string, data []byte, amount *big.Int) (string, error) {
	client, err := o.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	privateKey, err := crypto.ToECDSA(signer.Key)
	if err != nil {
		return "", fmt.Errorf("failed to load private key: %w", err)
	}

	fromAddress := crypto.PubkeyToAddress(privateKey.PublicKey)
	contractAddress := common.HexToAddress(contract)

	nonce, err := client.PendingNonceAt(ctx, fromAddress)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  fromAddress,
		To:    &contractAddress,
		Value: amount,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}

	// 20% buffer over the node's estimate
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, contractAddress, amount, gasLimit, gasPrice, data)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get chain ID: %w", err)
	}

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err = client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := signedTx.Hash().Hex()
	o.logger.Info("Contract call sent",
		"from", fromAddress.Hex(),
		"contract", contract,
		"value", amount.String(),
		"gas_limit", gasLimit,
		"tx_hash", txHash)

	return txHash, nil
}
