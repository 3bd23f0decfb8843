package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testInvestor = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fakeBackend struct {
	mu       sync.Mutex
	chainID  int64
	sent     []*types.Transaction
	status   uint64
	logsFor  func(tx *types.Transaction) []*types.Log
	sendErr  error
	notFound bool
	head     uint64
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.chainID), nil }
func (f *fakeBackend) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
	return f.head, nil
}
func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1_000_000_000), nil }
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}
func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}
func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}
func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notFound {
		return nil, ethereum.NotFound
	}
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			receipt := &types.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(10)}
			if f.logsFor != nil {
				receipt.Logs = f.logsFor(tx)
			}
			return receipt, nil
		}
	}
	return nil, ethereum.NotFound
}

func redeemedLog(t *testing.T, poolID int64, investor common.Address, shares, amount *big.Int) *types.Log {
	t.Helper()
	contractABI, err := PoolContractABI()
	require.NoError(t, err)
	event := contractABI.Events["Redeemed"]
	data, err := event.Inputs.NonIndexed().Pack(shares, amount)
	require.NoError(t, err)
	return &types.Log{
		Address: testContract,
		Topics: []common.Hash{
			event.ID,
			common.BigToHash(big.NewInt(poolID)),
			common.BytesToHash(investor.Bytes()),
		},
		Data: data,
	}
}

func newTestKey(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hexutil.Encode(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey)
}

func TestMockExecutorIsDeterministic(t *testing.T) {
	ctx := context.Background()
	req := ExecuteRequest{ChainPoolID: 3, Investor: testInvestor, Shares: big.NewInt(200_000_000), NavPerShare: 110_000_000}

	a := NewMockExecutor()
	b := NewMockExecutor()
	resA, err := a.Execute(ctx, req)
	require.NoError(t, err)
	resB, err := b.Execute(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, resA.TxHash, resB.TxHash)
	assert.Equal(t, int64(220_000_000), resA.Amount.Int64())

	second, err := a.Execute(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, resA.TxHash, second.TxHash)

	status, err := a.Lookup(ctx, resA.TxHash)
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.True(t, status.Success)

	status, err = a.Lookup(ctx, "0xdead")
	require.NoError(t, err)
	assert.False(t, status.Found)

	// issued by an earlier process
	status, err = b.Lookup(ctx, second.TxHash)
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.True(t, status.Success)
	assert.Nil(t, status.Amount)

	_, err = a.Execute(ctx, ExecuteRequest{Shares: big.NewInt(0)})
	assert.Error(t, err)
}

func TestDecodeRedeemed(t *testing.T) {
	log := redeemedLog(t, 9, testInvestor, big.NewInt(500), big.NewInt(550))
	other := &types.Log{Address: common.HexToAddress("0x3333333333333333333333333333333333333333"), Topics: log.Topics, Data: log.Data}

	event, err := DecodeRedeemed([]*types.Log{other, log}, testContract)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, int64(9), event.PoolID.Int64())
	assert.Equal(t, testInvestor, event.Investor)
	assert.Equal(t, int64(500), event.Shares.Int64())
	assert.Equal(t, int64(550), event.Amount.Int64())

	event, err = DecodeRedeemed([]*types.Log{other}, testContract)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestLiveExecutorValidate(t *testing.T) {
	backend := &fakeBackend{chainID: 56}
	key, _ := newTestKey(t)

	err := NewLiveExecutor(backend, LiveConfig{PoolContract: testContract.Hex()}, nil).Validate()
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = NewLiveExecutor(backend, LiveConfig{RelayerKey: key}, nil).Validate()
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = NewLiveExecutor(backend, LiveConfig{RelayerKey: "0xnothex", PoolContract: testContract.Hex()}, nil).Validate()
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NotContains(t, err.Error(), "nothex")

	err = NewLiveExecutor(nil, LiveConfig{RelayerKey: key, PoolContract: testContract.Hex()}, nil).Validate()
	assert.ErrorIs(t, err, ErrNotConfigured)

	assert.NoError(t, NewLiveExecutor(backend, LiveConfig{RelayerKey: key, PoolContract: testContract.Hex()}, nil).Validate())
}

func TestLiveExecutorSubmitsSignedRedeem(t *testing.T) {
	key, relayer := newTestKey(t)
	backend := &fakeBackend{chainID: 56, status: types.ReceiptStatusSuccessful}
	backend.logsFor = func(*types.Transaction) []*types.Log {
		return []*types.Log{redeemedLog(t, 4, testInvestor, big.NewInt(1000), big.NewInt(1100))}
	}

	exec := NewLiveExecutor(backend, LiveConfig{RelayerKey: key, PoolContract: testContract.Hex(), ChainID: 56}, zap.NewNop())
	var submitted string
	res, err := exec.Execute(context.Background(), ExecuteRequest{
		ChainPoolID: 4,
		Investor:    testInvestor,
		Shares:      big.NewInt(1000),
		OnSubmitted: func(h string) { submitted = h },
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), res.TxHash)
	assert.Equal(t, res.TxHash, submitted)
	assert.Equal(t, int64(1100), res.Amount.Int64())
	assert.Equal(t, testContract, *tx.To())
	assert.Equal(t, uint64(120_000), tx.Gas())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(56)), tx)
	require.NoError(t, err)
	assert.Equal(t, relayer, sender)
	assert.Equal(t, relayer, exec.Relayer())

	contractABI, err := PoolContractABI()
	require.NoError(t, err)
	method, err := contractABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "redeem", method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(4), args[0].(*big.Int).Int64())
	assert.Equal(t, testInvestor, args[1].(common.Address))

	status, err := exec.Lookup(context.Background(), res.TxHash)
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.True(t, status.Success)
	assert.Equal(t, int64(1100), status.Amount.Int64())
}

func TestLiveExecutorReportsRevert(t *testing.T) {
	key, _ := newTestKey(t)
	backend := &fakeBackend{chainID: 56, status: types.ReceiptStatusFailed}
	exec := NewLiveExecutor(backend, LiveConfig{RelayerKey: key, PoolContract: testContract.Hex()}, nil)

	res, err := exec.Execute(context.Background(), ExecuteRequest{ChainPoolID: 1, Investor: testInvestor, Shares: big.NewInt(1)})
	require.ErrorIs(t, err, ErrReverted)
	assert.NotEmpty(t, res.TxHash)
}

func TestLiveExecutorRejectsWrongChain(t *testing.T) {
	key, _ := newTestKey(t)
	backend := &fakeBackend{chainID: 1}
	exec := NewLiveExecutor(backend, LiveConfig{RelayerKey: key, PoolContract: testContract.Hex(), ChainID: 56}, nil)

	_, err := exec.Execute(context.Background(), ExecuteRequest{ChainPoolID: 1, Investor: testInvestor, Shares: big.NewInt(1)})
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, backend.sent)
}

func TestLiveExecutorLookupNotFound(t *testing.T) {
	key, _ := newTestKey(t)
	backend := &fakeBackend{chainID: 56, notFound: true}
	exec := NewLiveExecutor(backend, LiveConfig{RelayerKey: key, PoolContract: testContract.Hex(), MaxRetries: 3, RetryBackoff: time.Millisecond}, nil)

	status, err := exec.Lookup(context.Background(), common.Hash{}.Hex())
	require.NoError(t, err)
	assert.False(t, status.Found)
}

func TestWithRetry(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = withRetry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		calls++
		return ethereum.NotFound
	})
	assert.ErrorIs(t, err, ethereum.NotFound)
	assert.Equal(t, 1, calls)

	calls = 0
	err = withRetry(context.Background(), -1, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestParseHelpers(t *testing.T) {
	_, err := ParseAddress("not-an-address")
	assert.Error(t, err)
	addr, err := ParseAddress(" " + testContract.Hex() + " ")
	require.NoError(t, err)
	assert.Equal(t, testContract, addr)

	_, err = ParsePrivateKey("")
	assert.Error(t, err)
}
