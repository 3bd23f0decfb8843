package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RedeemedEvent is the decoded Redeemed log of the pool contract.
type RedeemedEvent struct {
	PoolID   *big.Int
	Investor common.Address
	Shares   *big.Int
	Amount   *big.Int
}

// DecodeRedeemed finds the Redeemed event emitted by contract in logs.
// It returns nil when the receipt carries no such event.
func DecodeRedeemed(logs []*types.Log, contract common.Address) (*RedeemedEvent, error) {
	contractABI, err := PoolContractABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	event, ok := contractABI.Events["Redeemed"]
	if !ok {
		return nil, fmt.Errorf("abi missing Redeemed event")
	}

	for _, log := range logs {
		if log == nil || log.Address != contract || len(log.Topics) != 3 || log.Topics[0] != event.ID {
			continue
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack Redeemed: %w", err)
		}
		if len(values) != 2 {
			return nil, fmt.Errorf("Redeemed field count %d", len(values))
		}
		shares, err := asBigInt(values[0])
		if err != nil {
			return nil, fmt.Errorf("shares: %w", err)
		}
		amount, err := asBigInt(values[1])
		if err != nil {
			return nil, fmt.Errorf("amount: %w", err)
		}

		return &RedeemedEvent{
			PoolID:   new(big.Int).SetBytes(log.Topics[1].Bytes()),
			Investor: common.BytesToAddress(log.Topics[2].Bytes()),
			Shares:   shares,
			Amount:   amount,
		}, nil
	}
	return nil, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return v, nil
	case big.Int:
		return &v, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", value)
	}
}
