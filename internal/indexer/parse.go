package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"liquidityVault/internal/vaultabi"
)

// FactoryAlias in an address list stands for the deployed factory.
const FactoryAlias = "factory"

// ParseAddresses converts vault and factory addresses, dropping blanks and repeats.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	seen := make(map[common.Address]struct{}, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.EqualFold(input, FactoryAlias) {
			input = vaultabi.DeployedFactory
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addr := common.HexToAddress(input)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseTopic0 accepts raw topic0 hashes or vault event names. A name selects
// every topic0 the event is known under, deployed aliases included.
func ParseTopic0(inputs []string) ([]common.Hash, error) {
	var byName map[string][]common.Hash
	topics := make([]common.Hash, 0, len(inputs))
	seen := make(map[common.Hash]struct{}, len(inputs))
	add := func(topic common.Hash) {
		if _, ok := seen[topic]; ok {
			return
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}

	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "0x") && !strings.HasPrefix(input, "0X") {
			if byName == nil {
				var err error
				if byName, err = topicsByName(); err != nil {
					return nil, err
				}
			}
			named, ok := byName[strings.ToLower(input)]
			if !ok {
				return nil, fmt.Errorf("unknown event: %s", input)
			}
			for _, topic := range named {
				add(topic)
			}
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("invalid topic0: %s", input)
		}
		if len(data) != 32 {
			return nil, fmt.Errorf("invalid topic0 length: %s", input)
		}
		add(common.BytesToHash(data))
	}
	return topics, nil
}

func topicsByName() (map[string][]common.Hash, error) {
	ordered, err := vaultabi.DefaultTopics()
	if err != nil {
		return nil, fmt.Errorf("vault topics: %w", err)
	}
	names, err := vaultabi.TopicNames()
	if err != nil {
		return nil, fmt.Errorf("vault topics: %w", err)
	}
	out := make(map[string][]common.Hash, len(vaultabi.EventNames))
	for _, topic := range ordered {
		name := strings.ToLower(names[topic])
		out[name] = append(out[name], topic)
	}
	return out, nil
}
