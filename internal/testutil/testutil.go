// Package testutil provides shared helpers for building chain data in tests.
package testutil

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// NewTestLogger creates a development logger for tests.
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// NewTestHeader creates a header at the given height.
func NewTestHeader(height uint64) *types.Header {
	return &types.Header{
		Number:   big.NewInt(int64(height)),
		Time:     uint64(time.Now().Unix()),
		GasLimit: 30000000,
		GasUsed:  21000,
		BaseFee:  big.NewInt(10_000_000_000),
	}
}

// NewTestBlock creates a block at the given height.
// Tests that need transactions inside the block should use mocks instead;
// real blocks require proper trie construction.
func NewTestBlock(height uint64) *types.Block {
	return types.NewBlockWithHeader(NewTestHeader(height))
}

// NewTestReceipt creates a receipt for the given transaction hash.
func NewTestReceipt(txHash common.Hash, blockNumber uint64, status uint64, logs []*types.Log) *types.Receipt {
	if logs == nil {
		logs = []*types.Log{}
	}
	return &types.Receipt{
		Type:              types.DynamicFeeTxType,
		Status:            status,
		CumulativeGasUsed: 21000,
		BlockNumber:       big.NewInt(int64(blockNumber)),
		TxHash:            txHash,
		GasUsed:           21000,
		Logs:              logs,
	}
}

// TransferTopic is the keccak hash of Transfer(address,address,uint256).
var TransferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// NewERC20TransferLog builds a log matching the ERC-20 Transfer layout:
// three topics, the amount ABI-encoded in the data section.
func NewERC20TransferLog(token, from, to common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(amount.Bytes(), 32),
	}
}

// NewERC721TransferLog builds a log matching the ERC-721 Transfer layout:
// four topics with the token ID indexed, no data.
func NewERC721TransferLog(token, from, to common.Address, tokenID *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(tokenID),
		},
	}
}
