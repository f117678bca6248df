package replica

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const replicaABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "owner", "type": "address"},
      {"internalType": "address", "name": "token", "type": "address"},
      {"internalType": "address[]", "name": "agents", "type": "address[]"},
      {"internalType": "address", "name": "relay", "type": "address"},
      {"internalType": "address", "name": "mainnetDataUnion", "type": "address"},
      {"internalType": "uint256", "name": "defaultNewMemberEth", "type": "uint256"}
    ],
    "name": "initialize",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "owner",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "isInitialized",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "mainnetDataUnion",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "newMemberEth",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	replicaABI     abi.ABI
	replicaABIOnce sync.Once
	replicaABIErr  error
)

// ABI returns the parsed replica ABI.
func ABI() (abi.ABI, error) {
	replicaABIOnce.Do(func() {
		replicaABI, replicaABIErr = abi.JSON(strings.NewReader(replicaABIJSON))
	})
	return replicaABI, replicaABIErr
}
