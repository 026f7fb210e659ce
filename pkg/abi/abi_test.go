package abi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/internal/testutil"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

var (
	testToken = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testFrom  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testTo    = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestNewContractABI(t *testing.T) {
	contract, err := NewContractABI(testToken, "ERC20", peektypes.AbiSourceBuiltin, erc20ABIJSON)
	require.NoError(t, err)
	assert.False(t, contract.IsUnknown())
	assert.NotNil(t, contract.Parsed())

	_, err = NewContractABI(testToken, "bad", peektypes.AbiSourceEtherscan, "not json")
	assert.Error(t, err)
}

func TestUnknownABI(t *testing.T) {
	unknown := NewUnknownABI(testToken)
	assert.True(t, unknown.IsUnknown())
	assert.Nil(t, unknown.Parsed())
	assert.Equal(t, peektypes.AbiSourceUnknown, unknown.Source)

	var nilContract *ContractABI
	assert.True(t, nilContract.IsUnknown())
	assert.Nil(t, nilContract.Parsed())
}

func TestWithAddress(t *testing.T) {
	impl := common.HexToAddress("0x4444444444444444444444444444444444444444")
	contract, err := NewContractABI(impl, "Token", peektypes.AbiSourceSourcify, erc20ABIJSON)
	require.NoError(t, err)

	proxied := contract.WithAddress(testToken)
	assert.Equal(t, testToken, proxied.Address)
	assert.Equal(t, impl, contract.Address)
	assert.Equal(t, contract.Parsed(), proxied.Parsed())
}

func TestDecodeCall(t *testing.T) {
	contract, err := NewContractABI(testToken, "ERC20", peektypes.AbiSourceSourcify, erc20ABIJSON)
	require.NoError(t, err)

	amount := big.NewInt(1_000_000)
	input, err := contract.Parsed().Pack("transfer", testTo, amount)
	require.NoError(t, err)

	decoder := NewDecoder(zap.NewNop())
	decoded := decoder.DecodeCall(input, contract)
	require.NotNil(t, decoded)
	assert.Equal(t, "transfer", decoded.Method)
	assert.Equal(t, "transfer(address,uint256)", decoded.Signature)
	assert.Equal(t, "0xa9059cbb", decoded.Selector)
	assert.Equal(t, peektypes.AbiSourceSourcify, decoded.Source)
	require.Len(t, decoded.Params, 2)
	assert.Equal(t, "to", decoded.Params[0].Name)
	assert.Equal(t, "address", decoded.Params[0].Type)
	assert.Equal(t, testTo.Hex(), decoded.Params[0].Value)
	assert.Equal(t, "value", decoded.Params[1].Name)
	assert.Equal(t, "1000000", decoded.Params[1].Value)
}

func TestDecodeCallBuiltinFallback(t *testing.T) {
	erc20 := builtinForStandard(peektypes.StandardERC20)
	input, err := erc20.Parsed().Pack("approve", testTo, big.NewInt(42))
	require.NoError(t, err)

	decoder := NewDecoder(zap.NewNop())
	decoded := decoder.DecodeCall(input, NewUnknownABI(testToken))
	require.NotNil(t, decoded)
	assert.Equal(t, "approve", decoded.Method)
	assert.Equal(t, peektypes.AbiSourceBuiltin, decoded.Source)
	require.Len(t, decoded.Params, 2)
	assert.Equal(t, "42", decoded.Params[1].Value)
}

func TestDecodeCallUnknownSelector(t *testing.T) {
	decoder := NewDecoder(zap.NewNop())
	decoded := decoder.DecodeCall([]byte{0xde, 0xad, 0xbe, 0xef, 0x01}, NewUnknownABI(testToken))
	require.NotNil(t, decoded)
	assert.Empty(t, decoded.Method)
	assert.Equal(t, "0xdeadbeef", decoded.Selector)
	assert.Equal(t, peektypes.AbiSourceUnknown, decoded.Source)
}

func TestDecodeCallMalformedArguments(t *testing.T) {
	contract, err := NewContractABI(testToken, "ERC20", peektypes.AbiSourceEtherscan, erc20ABIJSON)
	require.NoError(t, err)

	// Valid transfer selector followed by a truncated payload.
	input := []byte{0xa9, 0x05, 0x9c, 0xbb, 0x01, 0x02}
	decoder := NewDecoder(zap.NewNop())
	decoded := decoder.DecodeCall(input, contract)
	require.NotNil(t, decoded)
	assert.Equal(t, "transfer", decoded.Method)
	assert.Nil(t, decoded.Params)
}

func TestDecodeCallShortInput(t *testing.T) {
	decoder := NewDecoder(zap.NewNop())
	assert.Nil(t, decoder.DecodeCall([]byte{0x01, 0x02}, nil))
	assert.Nil(t, decoder.DecodeCall(nil, nil))
}

func TestDecodeLog(t *testing.T) {
	contract, err := NewContractABI(testToken, "ERC20", peektypes.AbiSourceBuiltin, erc20ABIJSON)
	require.NoError(t, err)

	log := testutil.NewERC20TransferLog(testToken, testFrom, testTo, big.NewInt(500))
	decoder := NewDecoder(zap.NewNop())
	event := decoder.DecodeLog(log, contract)
	require.NotNil(t, event)
	assert.Equal(t, "Transfer", event.Name)
	assert.Equal(t, "Transfer(address,address,uint256)", event.Signature)
	assert.Equal(t, testToken, event.Contract)
	require.Len(t, event.Params, 3)
	assert.Equal(t, testFrom.Hex(), event.Params[0].Value)
	assert.Equal(t, testTo.Hex(), event.Params[1].Value)
	assert.Equal(t, "500", event.Params[2].Value)
}

func TestDecodeLogNoMatch(t *testing.T) {
	contract, err := NewContractABI(testToken, "ERC20", peektypes.AbiSourceBuiltin, erc20ABIJSON)
	require.NoError(t, err)
	decoder := NewDecoder(zap.NewNop())

	unknownTopic := &types.Log{
		Address: testToken,
		Topics:  []common.Hash{common.HexToHash("0x01")},
	}
	assert.Nil(t, decoder.DecodeLog(unknownTopic, contract))

	// ERC-721 style Transfer has one topic too many for the ERC-20 event.
	erc721Log := testutil.NewERC721TransferLog(testToken, testFrom, testTo, big.NewInt(7))
	assert.Nil(t, decoder.DecodeLog(erc721Log, contract))

	assert.Nil(t, decoder.DecodeLog(nil, contract))
	assert.Nil(t, decoder.DecodeLog(unknownTopic, NewUnknownABI(testToken)))
}

func TestExtractTokenTransfersERC20(t *testing.T) {
	logs := []*types.Log{
		testutil.NewERC20TransferLog(testToken, testFrom, testTo, big.NewInt(1234)),
	}
	transfers := ExtractTokenTransfers(logs)
	require.Len(t, transfers, 1)
	assert.Equal(t, peektypes.StandardERC20, transfers[0].Standard)
	assert.Equal(t, testToken, transfers[0].Token)
	assert.Equal(t, testFrom, transfers[0].From)
	assert.Equal(t, testTo, transfers[0].To)
	assert.Equal(t, "1234", transfers[0].Amount.String())
	assert.Nil(t, transfers[0].TokenID)
}

func TestExtractTokenTransfersERC721(t *testing.T) {
	logs := []*types.Log{
		testutil.NewERC721TransferLog(testToken, testFrom, testTo, big.NewInt(99)),
	}
	transfers := ExtractTokenTransfers(logs)
	require.Len(t, transfers, 1)
	assert.Equal(t, peektypes.StandardERC721, transfers[0].Standard)
	assert.Equal(t, "99", transfers[0].TokenID.String())
	assert.Equal(t, "1", transfers[0].Amount.String())
}

func TestExtractTokenTransfersERC1155Single(t *testing.T) {
	operator := common.HexToAddress("0x5555555555555555555555555555555555555555")
	data := append(
		common.BigToHash(big.NewInt(7)).Bytes(),
		common.BigToHash(big.NewInt(20)).Bytes()...,
	)
	log := &types.Log{
		Address: testToken,
		Topics: []common.Hash{
			TransferSingleTopic,
			common.BytesToHash(operator.Bytes()),
			common.BytesToHash(testFrom.Bytes()),
			common.BytesToHash(testTo.Bytes()),
		},
		Data: data,
	}
	transfers := ExtractTokenTransfers([]*types.Log{log})
	require.Len(t, transfers, 1)
	assert.Equal(t, peektypes.StandardERC1155, transfers[0].Standard)
	assert.Equal(t, testFrom, transfers[0].From)
	assert.Equal(t, testTo, transfers[0].To)
	assert.Equal(t, "7", transfers[0].TokenID.String())
	assert.Equal(t, "20", transfers[0].Amount.String())
}

func TestExtractTokenTransfersERC1155Batch(t *testing.T) {
	operator := common.HexToAddress("0x5555555555555555555555555555555555555555")
	event, err := builtinForStandard(peektypes.StandardERC1155).Parsed().EventByID(TransferBatchTopic)
	require.NoError(t, err)
	data, err := event.Inputs.NonIndexed().Pack(
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		[]*big.Int{big.NewInt(10), big.NewInt(20)},
	)
	require.NoError(t, err)

	log := &types.Log{
		Address: testToken,
		Topics: []common.Hash{
			TransferBatchTopic,
			common.BytesToHash(operator.Bytes()),
			common.BytesToHash(testFrom.Bytes()),
			common.BytesToHash(testTo.Bytes()),
		},
		Data: data,
	}
	transfers := ExtractTokenTransfers([]*types.Log{log})
	require.Len(t, transfers, 2)
	assert.Equal(t, "1", transfers[0].TokenID.String())
	assert.Equal(t, "10", transfers[0].Amount.String())
	assert.Equal(t, "2", transfers[1].TokenID.String())
	assert.Equal(t, "20", transfers[1].Amount.String())
}

func TestExtractTokenTransfersSkipsMalformed(t *testing.T) {
	logs := []*types.Log{
		nil,
		{Address: testToken},
		{
			Address: testToken,
			Topics:  []common.Hash{TransferTopic, common.BytesToHash(testFrom.Bytes())},
		},
		{
			// ERC-20 Transfer with an empty data payload.
			Address: testToken,
			Topics: []common.Hash{
				TransferTopic,
				common.BytesToHash(testFrom.Bytes()),
				common.BytesToHash(testTo.Bytes()),
			},
		},
	}
	assert.Empty(t, ExtractTokenTransfers(logs))
}

func TestBuiltinMatchesBytecode(t *testing.T) {
	builtin := findBuiltin(t, peektypes.StandardERC20)

	code := common.Hex2Bytes("6080604052a9059cbb000070a08231000018160ddd")
	assert.True(t, builtin.MatchesBytecode(code, 3))
	assert.False(t, builtin.MatchesBytecode(code, 4))
	assert.False(t, builtin.MatchesBytecode(nil, 1))
}

func findBuiltin(t *testing.T, standard peektypes.TokenStandard) *Builtin {
	t.Helper()
	for _, b := range Builtins() {
		if b.Standard == standard {
			return b
		}
	}
	t.Fatalf("no builtin for %s", standard)
	return nil
}

func TestLookupBuiltinSelector(t *testing.T) {
	method, ok := LookupBuiltinSelector([]byte{0xa9, 0x05, 0x9c, 0xbb})
	require.True(t, ok)
	assert.Equal(t, "transfer", method.Name)
	assert.Equal(t, "transfer(address,uint256)", method.Signature)

	_, ok = LookupBuiltinSelector([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.False(t, ok)

	_, ok = LookupBuiltinSelector([]byte{0x01})
	assert.False(t, ok)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "123", FormatValue(big.NewInt(123)))
	assert.Equal(t, testTo.Hex(), FormatValue(testTo))
	assert.Equal(t, "0x0102", FormatValue([]byte{0x01, 0x02}))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "hello", FormatValue("hello"))
	assert.Equal(t, "[1,2]", FormatValue([]*big.Int{big.NewInt(1), big.NewInt(2)}))
	assert.Equal(t, "{a:1,b:2}", FormatValue(map[string]interface{}{
		"b": big.NewInt(2),
		"a": big.NewInt(1),
	}))
}
