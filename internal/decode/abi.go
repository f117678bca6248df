package decode

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const unionABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "member", "type": "address"}
    ],
    "name": "MemberJoined",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "member", "type": "address"},
      {"indexed": false, "internalType": "uint8", "name": "leaveConditionCode", "type": "uint8"}
    ],
    "name": "MemberParted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "member", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "oldWeight", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "newWeight", "type": "uint256"}
    ],
    "name": "MemberWeightChanged",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "RevenueReceived",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "previousOwner", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "newOwner", "type": "address"}
    ],
    "name": "OwnershipTransferred",
    "type": "event"
  }
]`

const factoryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "mainnet", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "sidenet", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "template", "type": "address"}
    ],
    "name": "SidechainDUCreated",
    "type": "event"
  }
]`

var (
	unionABI     abi.ABI
	unionABIOnce sync.Once
	unionABIErr  error

	factoryABI     abi.ABI
	factoryABIOnce sync.Once
	factoryABIErr  error
)

// UnionABI returns the events emitted by a union contract.
func UnionABI() (abi.ABI, error) {
	unionABIOnce.Do(func() {
		unionABI, unionABIErr = abi.JSON(strings.NewReader(unionABIJSON))
	})
	return unionABI, unionABIErr
}

// FactoryABI returns the events emitted by the factory.
func FactoryABI() (abi.ABI, error) {
	factoryABIOnce.Do(func() {
		factoryABI, factoryABIErr = abi.JSON(strings.NewReader(factoryABIJSON))
	})
	return factoryABI, factoryABIErr
}
