// Package abi turns raw calldata and event logs into display-ready
// structures using go-ethereum's ABI machinery, with built-in support for
// the common token standards.
package abi

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// ContractABI wraps a parsed contract ABI with resolution metadata.
type ContractABI struct {
	Address common.Address
	Name    string
	Source  peektypes.AbiSource
	ABI     string

	parsed *abi.ABI
}

// NewContractABI parses an ABI JSON string.
func NewContractABI(address common.Address, name string, source peektypes.AbiSource, abiJSON string) (*ContractABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI for %s: %w", address.Hex(), err)
	}
	return &ContractABI{
		Address: address,
		Name:    name,
		Source:  source,
		ABI:     abiJSON,
		parsed:  &parsed,
	}, nil
}

// NewUnknownABI creates the sentinel result for a contract whose ABI could
// not be resolved anywhere. It decodes nothing but is cacheable so repeated
// misses stay off the network.
func NewUnknownABI(address common.Address) *ContractABI {
	return &ContractABI{
		Address: address,
		Name:    "Unknown",
		Source:  peektypes.AbiSourceUnknown,
	}
}

// IsUnknown reports whether this is an unresolved-ABI sentinel.
func (c *ContractABI) IsUnknown() bool {
	return c == nil || c.parsed == nil
}

// Parsed returns the underlying go-ethereum ABI, nil for unknown ABIs.
func (c *ContractABI) Parsed() *abi.ABI {
	if c == nil {
		return nil
	}
	return c.parsed
}

// WithAddress returns a copy attributed to a different address. Used to
// attach a proxy implementation's ABI to the proxy itself.
func (c *ContractABI) WithAddress(address common.Address) *ContractABI {
	clone := *c
	clone.Address = address
	return &clone
}
