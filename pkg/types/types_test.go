package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestTxStatus_String(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
}

func TestTxType_String(t *testing.T) {
	assert.Equal(t, "legacy", TxTypeLegacy.String())
	assert.Equal(t, "dynamic_fee", TxTypeDynamicFee.String())
	assert.Equal(t, "blob", TxTypeBlob.String())
	assert.Equal(t, "unknown", TxType(99).String())
}

func TestNormalizeAddress(t *testing.T) {
	addr := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	got := NormalizeAddress(addr)
	assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", got)

	// Mixed-case inputs of the same address normalize identically.
	other := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	assert.Equal(t, got, NormalizeAddress(other))
}

func TestNormalizeHash(t *testing.T) {
	hash := common.HexToHash("0xDDF252AD1BE2C89B69C2B068FC378DAA952BA7F163C4A11628F55A4DF523B3EF")
	assert.Equal(t,
		"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef",
		NormalizeHash(hash))
}
