package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress parses a required hex address; name labels the setting in errors.
func ParseAddress(name, input string) (common.Address, error) {
	if input == "" {
		return common.Address{}, fmt.Errorf("%s address is required", name)
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", name, input)
	}
	return common.HexToAddress(input), nil
}

// ParseAddresses parses hex addresses in order. Duplicates are kept.
func ParseAddresses(name string, inputs []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(inputs))
	for _, input := range cleanStrings(inputs) {
		addr, err := ParseAddress(name, input)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
