package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"navLedger/internal/fixedpoint"
)

// MockExecutor returns deterministic synthetic hashes. It must not be used
// in production.
type MockExecutor struct {
	mu     sync.Mutex
	seq    uint64
	issued map[string]*big.Int
}

var _ Executor = (*MockExecutor)(nil)

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{issued: make(map[string]*big.Int)}
}

func (m *MockExecutor) Mode() string { return ModeMock }

func (m *MockExecutor) Validate() error { return nil }

// Execute derives the hash from the request and a per-executor sequence, so
// the same sequence of calls always yields the same hashes. The settled
// amount is shares valued at the supplied NAV.
func (m *MockExecutor) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecuteResult{}, err
	}
	if req.Shares == nil || req.Shares.Sign() <= 0 {
		return ExecuteResult{}, fmt.Errorf("shares must be positive")
	}

	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	hash := MockTxHash(req.ChainPoolID, req.Investor, req.Shares, seq)
	nav := req.NavPerShare
	if nav <= 0 {
		nav = fixedpoint.Scale
	}
	amount := fixedpoint.MulScaled(req.Shares, big.NewInt(nav))

	m.mu.Lock()
	m.issued[hash] = new(big.Int).Set(amount)
	m.mu.Unlock()

	if req.OnSubmitted != nil {
		req.OnSubmitted(hash)
	}
	return ExecuteResult{TxHash: hash, Amount: amount}, nil
}

// Lookup reports every well-formed hash as mined. The mock only hands a hash
// to OnSubmitted on success, so a recorded hash always means a settled call.
// The amount is known only for hashes issued by this process.
func (m *MockExecutor) Lookup(_ context.Context, txHash string) (ReceiptStatus, error) {
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		return ReceiptStatus{}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	status := ReceiptStatus{Found: true, Success: true}
	if amount, ok := m.issued[txHash]; ok {
		status.Amount = new(big.Int).Set(amount)
	}
	return status, nil
}

// MockTxHash is keccak256("mock-redeem" | pool | investor | shares | seq).
func MockTxHash(chainPoolID uint64, investor common.Address, shares *big.Int, seq uint64) string {
	payload := fmt.Sprintf("mock-redeem|%d|%s|%s|%d", chainPoolID, investor.Hex(), shares.String(), seq)
	return crypto.Keccak256Hash([]byte(payload)).Hex()
}
