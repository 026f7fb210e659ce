// Package types defines the decoded chain data model shared across ethpeek.
package types

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TxStatus is the execution outcome of a transaction.
type TxStatus uint8

const (
	StatusUnknown TxStatus = iota
	StatusSuccess
	StatusFailed
	StatusPending
)

// String returns a human-readable status name.
func (s TxStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// TxType mirrors the EIP-2718 transaction envelope types.
type TxType uint8

const (
	TxTypeLegacy     TxType = 0
	TxTypeAccessList TxType = 1
	TxTypeDynamicFee TxType = 2
	TxTypeBlob       TxType = 3
)

// String returns a human-readable type name.
func (t TxType) String() string {
	switch t {
	case TxTypeLegacy:
		return "legacy"
	case TxTypeAccessList:
		return "access_list"
	case TxTypeDynamicFee:
		return "dynamic_fee"
	case TxTypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// AbiSource names where a contract ABI came from.
type AbiSource string

const (
	AbiSourceBuiltin   AbiSource = "builtin"
	AbiSourceSourcify  AbiSource = "sourcify"
	AbiSourceEtherscan AbiSource = "etherscan"
	AbiSourceUnknown   AbiSource = "unknown"
)

// TokenStandard names the token interface a transfer log matched.
type TokenStandard string

const (
	StandardERC20   TokenStandard = "erc20"
	StandardERC721  TokenStandard = "erc721"
	StandardERC1155 TokenStandard = "erc1155"
)

// BlockSummary is the list-view projection of a block.
type BlockSummary struct {
	Number   uint64
	Hash     common.Hash
	Time     uint64
	TxCount  int
	GasUsed  uint64
	GasLimit uint64
	BaseFee  *big.Int
	Miner    common.Address
}

// BlockDetail is the full projection of a block including its transactions.
type BlockDetail struct {
	BlockSummary
	ParentHash   common.Hash
	StateRoot    common.Hash
	Transactions []TransactionSummary
}

// TransactionSummary is the list-view projection of a transaction.
type TransactionSummary struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address
	Value *big.Int
	Nonce uint64
}

// TransactionDetail is the full projection of a transaction, including
// decoded calldata and extracted token transfers when available.
type TransactionDetail struct {
	TransactionSummary
	BlockNumber     uint64
	BlockHash       common.Hash
	Index           uint64
	Type            TxType
	Status          TxStatus
	GasLimit        uint64
	GasUsed         uint64
	GasPrice        *big.Int
	MaxFee          *big.Int
	MaxPriorityFee  *big.Int
	Input           []byte
	Decoded         *DecodedCall
	TokenTransfers  []TokenTransfer
	Confirmations   uint64
	ContractCreated *common.Address
}

// DecodedCall is a calldata decode result. For an unrecognized selector
// Method is empty and Selector carries the first four input bytes.
type DecodedCall struct {
	Method    string
	Signature string
	Selector  string
	Source    AbiSource
	Params    []Param
}

// Param is one decoded argument rendered for display.
type Param struct {
	Name  string
	Type  string
	Value string
}

// TokenTransfer is a token movement extracted from receipt logs.
// Amount is set for ERC-20 and ERC-1155, TokenID for ERC-721 and ERC-1155.
type TokenTransfer struct {
	Token    common.Address
	Standard TokenStandard
	From     common.Address
	To       common.Address
	Amount   *big.Int
	TokenID  *big.Int
}

// AddressInfo is the full projection of an account.
type AddressInfo struct {
	Address    common.Address
	Balance    *big.Int
	Nonce      uint64
	IsContract bool
	Contract   *ContractInfo
	History    []HistoryEntry
}

// ContractInfo describes a contract account, including proxy resolution.
type ContractInfo struct {
	Name           string
	Source         AbiSource
	IsProxy        bool
	Implementation *common.Address
}

// HistoryEntry is one transaction in an address's explorer history.
type HistoryEntry struct {
	Hash        common.Hash
	BlockNumber uint64
	Time        uint64
	From        common.Address
	To          *common.Address
	Value       *big.Int
	Failed      bool
}

// TokenMetadata carries a token contract's descriptive fields.
type TokenMetadata struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
}

// GasInfo is a fee snapshot derived from recent fee history.
type GasInfo struct {
	BaseFee   *big.Int
	Slow      *big.Int
	Standard  *big.Int
	Fast      *big.Int
	Congested bool
}

// InternalCall is one flattened frame from a transaction trace.
type InternalCall struct {
	CallType string
	From     common.Address
	To       common.Address
	Value    *big.Int
	Gas      uint64
	Depth    int
	Error    string
}

// NormalizeAddress lowercases an address for use as a cache or map key.
func NormalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// NormalizeHash lowercases a hash for use as a cache or map key.
func NormalizeHash(hash common.Hash) string {
	return strings.ToLower(hash.Hex())
}

// NormalizeSelector lowercases a 4-byte selector string and ensures the
// 0x prefix.
func NormalizeSelector(selector string) string {
	selector = strings.ToLower(strings.TrimSpace(selector))
	if !strings.HasPrefix(selector, "0x") {
		selector = "0x" + selector
	}
	return selector
}
