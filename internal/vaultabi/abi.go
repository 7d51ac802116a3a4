package vaultabi

import (
	"bytes"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const vaultABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"indexed": true, "internalType": "uint256", "name": "amount1", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "positionId", "type": "uint256"}
    ],
    "name": "PositionOpened",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1", "type": "uint256"}
    ],
    "name": "FeesCollected",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "positionId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount0", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amount1", "type": "uint256"}
    ],
    "name": "PositionClosed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "trader", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "sellToken", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "buyToken", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "sellAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "buyAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "feeAmount", "type": "uint256"}
    ],
    "name": "SwapExecuted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "token0", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "token1", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "vaultId", "type": "uint256"}
    ],
    "name": "VaultCreated",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "token0",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "token1",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "currentFeeRate",
    "outputs": [{"internalType": "uint16", "name": "", "type": "uint16"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	vaultABI     abi.ABI
	vaultABIOnce sync.Once
	vaultABIErr  error
)

// VaultABI returns the parsed ABI of the vault and factory contracts.
func VaultABI() (abi.ABI, error) {
	vaultABIOnce.Do(func() {
		vaultABI, vaultABIErr = abi.JSON(strings.NewReader(vaultABIJSON))
	})
	return vaultABI, vaultABIErr
}

// EventNames lists every event the decoder understands.
var EventNames = []string{
	"VaultCreated",
	"PositionOpened",
	"FeesCollected",
	"PositionClosed",
	"SwapExecuted",
}

// DeployedFactory is the factory of the live deployment.
const DeployedFactory = "0x008D4Dd934f9811E768F71AbCe59E193DC407CF8"

// DeployedTopics maps the topic0 values emitted by the live deployment to the
// event they carry. Their topic and data layout is the one in vaultABIJSON;
// only the signature hash differs.
var DeployedTopics = map[common.Hash]string{
	common.HexToHash("0xb9f84b8e65164b14439ae3620519ba4d2af4c96b1396b1772946e897159a45a7"): "VaultCreated",
	common.HexToHash("0x3c92d699a2f0cd9742c8a14eba5a8ad4b514a480ee8a297e3304a1e97c2b332d"): "PositionOpened",
}

// TopicNames maps every recognised topic0 to its event name.
func TopicNames() (map[common.Hash]string, error) {
	parsed, err := VaultABI()
	if err != nil {
		return nil, err
	}
	names := make(map[common.Hash]string, len(EventNames)+len(DeployedTopics))
	for _, name := range EventNames {
		names[parsed.Events[name].ID] = name
	}
	for topic, name := range DeployedTopics {
		names[topic] = name
	}
	return names, nil
}

// DefaultTopics returns every recognised topic0, in EventNames order followed
// by the deployed aliases.
func DefaultTopics() ([]common.Hash, error) {
	parsed, err := VaultABI()
	if err != nil {
		return nil, err
	}
	topics := make([]common.Hash, 0, len(EventNames)+len(DeployedTopics))
	for _, name := range EventNames {
		topics = append(topics, parsed.Events[name].ID)
	}
	aliases := make([]common.Hash, 0, len(DeployedTopics))
	for topic := range DeployedTopics {
		aliases = append(aliases, topic)
	}
	sort.Slice(aliases, func(i, j int) bool { return bytes.Compare(aliases[i][:], aliases[j][:]) < 0 })
	return append(topics, aliases...), nil
}
