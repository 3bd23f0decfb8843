package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolContractABIJSON = `[
  {
    "inputs": [
      {"internalType": "uint256", "name": "poolId", "type": "uint256"},
      {"internalType": "address", "name": "investor", "type": "address"},
      {"internalType": "uint256", "name": "shares", "type": "uint256"}
    ],
    "name": "redeem",
    "outputs": [{"internalType": "uint256", "name": "amount", "type": "uint256"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "poolId", "type": "uint256"}],
    "name": "navPerShare",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "poolId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "investor", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "shares", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "Redeemed",
    "type": "event"
  }
]`

var (
	poolContractABI     abi.ABI
	poolContractABIOnce sync.Once
	poolContractABIErr  error
)

// PoolContractABI returns the parsed pool contract ABI.
func PoolContractABI() (abi.ABI, error) {
	poolContractABIOnce.Do(func() {
		poolContractABI, poolContractABIErr = abi.JSON(strings.NewReader(poolContractABIJSON))
	})
	return poolContractABI, poolContractABIErr
}
