package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Backend is the RPC surface LiveExecutor needs. *Client implements it.
type Backend interface {
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

var _ Backend = (*Client)(nil)

// LiveConfig holds relayer and contract settings.
type LiveConfig struct {
	RelayerKey    string
	PoolContract  string
	ChainID       uint64
	Confirmations uint64
	PollInterval  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// LiveExecutor submits redeem calls from the relayer account. Calls are
// serialized: the relayer nonce sequence is a single shared resource.
type LiveExecutor struct {
	cfg     LiveConfig
	backend Backend
	logger  *zap.Logger

	mu       sync.Mutex
	key      *ecdsa.PrivateKey
	from     common.Address
	contract common.Address
	chainID  *big.Int
}

var _ Executor = (*LiveExecutor)(nil)

// NewLiveExecutor never fails; configuration problems surface from Validate
// so a misconfigured relayer only disables the live path of a cycle.
func NewLiveExecutor(backend Backend, cfg LiveConfig, logger *zap.Logger) *LiveExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &LiveExecutor{cfg: cfg, backend: backend, logger: logger}
}

func (e *LiveExecutor) Mode() string { return ModeLive }

func (e *LiveExecutor) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked()
}

func (e *LiveExecutor) loadLocked() error {
	if e.key != nil {
		return nil
	}
	if e.backend == nil {
		return fmt.Errorf("%w: rpc client is nil", ErrNotConfigured)
	}
	if e.cfg.RelayerKey == "" {
		return fmt.Errorf("%w: relayer key missing", ErrNotConfigured)
	}
	if e.cfg.PoolContract == "" {
		return fmt.Errorf("%w: pool contract address missing", ErrNotConfigured)
	}
	key, err := ParsePrivateKey(e.cfg.RelayerKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	contract, err := ParseAddress(e.cfg.PoolContract)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	e.key = key
	e.from = crypto.PubkeyToAddress(key.PublicKey)
	e.contract = contract
	return nil
}

// Relayer returns the relayer address once Validate has succeeded.
func (e *LiveExecutor) Relayer() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.from
}

func (e *LiveExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.loadLocked(); err != nil {
		return ExecuteResult{}, err
	}
	if req.Shares == nil || req.Shares.Sign() <= 0 {
		return ExecuteResult{}, fmt.Errorf("shares must be positive")
	}

	chainID, err := e.chainIDLocked(ctx)
	if err != nil {
		return ExecuteResult{}, err
	}

	contractABI, err := PoolContractABI()
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("parse pool abi: %w", err)
	}
	data, err := contractABI.Pack("redeem", new(big.Int).SetUint64(req.ChainPoolID), req.Investor, req.Shares)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("pack redeem: %w", err)
	}

	nonce, err := e.backend.PendingNonceAt(ctx, e.from)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("suggest gas price: %w", err)
	}
	gas, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{From: e.from, To: &e.contract, Data: data})
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &e.contract,
		Value:    new(big.Int),
		Gas:      gas + gas/5,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), e.key)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return ExecuteResult{}, fmt.Errorf("send tx: %w", err)
	}

	txHash := signed.Hash().Hex()
	e.logger.Info("redeem submitted",
		zap.String("tx_hash", txHash),
		zap.Uint64("chain_pool_id", req.ChainPoolID),
		zap.String("investor", req.Investor.Hex()),
		zap.Uint64("nonce", nonce),
	)
	if req.OnSubmitted != nil {
		req.OnSubmitted(txHash)
	}

	receipt, err := bind.WaitMined(ctx, e.backend, signed)
	if err != nil {
		return ExecuteResult{TxHash: txHash}, fmt.Errorf("wait mined %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ExecuteResult{TxHash: txHash}, fmt.Errorf("%w: %s", ErrReverted, txHash)
	}
	if err := e.awaitConfirmations(ctx, receipt); err != nil {
		return ExecuteResult{TxHash: txHash}, err
	}

	result := ExecuteResult{TxHash: txHash}
	event, err := DecodeRedeemed(receipt.Logs, e.contract)
	if err != nil {
		e.logger.Warn("decode Redeemed event", zap.String("tx_hash", txHash), zap.Error(err))
	} else if event != nil {
		result.Amount = event.Amount
	}
	return result, nil
}

func (e *LiveExecutor) Lookup(ctx context.Context, txHash string) (ReceiptStatus, error) {
	if err := e.Validate(); err != nil {
		return ReceiptStatus{}, err
	}

	var receipt *types.Receipt
	err := withRetry(ctx, e.cfg.MaxRetries, e.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		receipt, err = e.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			e.logger.Warn("receipt lookup failed", zap.String("tx_hash", txHash), zap.Error(err))
		}
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return ReceiptStatus{}, nil
	}
	if err != nil {
		return ReceiptStatus{}, fmt.Errorf("receipt %s: %w", txHash, err)
	}

	status := ReceiptStatus{Found: true, Success: receipt.Status == types.ReceiptStatusSuccessful}
	if status.Success {
		e.mu.Lock()
		contract := e.contract
		e.mu.Unlock()
		if event, err := DecodeRedeemed(receipt.Logs, contract); err == nil && event != nil {
			status.Amount = event.Amount
		}
	}
	return status, nil
}

func (e *LiveExecutor) chainIDLocked(ctx context.Context) (*big.Int, error) {
	if e.chainID != nil {
		return e.chainID, nil
	}
	remote, err := e.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if e.cfg.ChainID != 0 && remote.Uint64() != e.cfg.ChainID {
		return nil, fmt.Errorf("%w: rpc chain id %s, expected %d", ErrNotConfigured, remote, e.cfg.ChainID)
	}
	e.chainID = remote
	return remote, nil
}

func (e *LiveExecutor) awaitConfirmations(ctx context.Context, receipt *types.Receipt) error {
	if e.cfg.Confirmations <= 1 || receipt.BlockNumber == nil {
		return nil
	}
	target := receipt.BlockNumber.Uint64() + e.cfg.Confirmations - 1

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		head, err := e.backend.LatestBlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		if err != nil {
			e.logger.Warn("latest block lookup failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
