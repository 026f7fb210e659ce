package abi

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// Transfer event topics for the token standards.
var (
	TransferTopic       = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	TransferSingleTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
	TransferBatchTopic  = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))
)

// ExtractTokenTransfers scans receipt logs for token transfer events.
// ERC-20 and ERC-721 share the same Transfer topic and are told apart
// by topic count: ERC-721 indexes the token id as a third topic.
// Logs that carry a transfer topic but a malformed payload are skipped.
func ExtractTokenTransfers(logs []*types.Log) []peektypes.TokenTransfer {
	var transfers []peektypes.TokenTransfer
	for _, log := range logs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}
		switch log.Topics[0] {
		case TransferTopic:
			if transfer, ok := extractTransfer(log); ok {
				transfers = append(transfers, transfer)
			}
		case TransferSingleTopic:
			if transfer, ok := extractTransferSingle(log); ok {
				transfers = append(transfers, transfer)
			}
		case TransferBatchTopic:
			transfers = append(transfers, extractTransferBatch(log)...)
		}
	}
	return transfers
}

func extractTransfer(log *types.Log) (peektypes.TokenTransfer, bool) {
	switch len(log.Topics) {
	case 3:
		// ERC-20: value sits in the data payload.
		if len(log.Data) < 32 {
			return peektypes.TokenTransfer{}, false
		}
		return peektypes.TokenTransfer{
			Token:    log.Address,
			Standard: peektypes.StandardERC20,
			From:     common.BytesToAddress(log.Topics[1].Bytes()),
			To:       common.BytesToAddress(log.Topics[2].Bytes()),
			Amount:   new(big.Int).SetBytes(log.Data[:32]),
		}, true
	case 4:
		// ERC-721: token id is the indexed third argument.
		return peektypes.TokenTransfer{
			Token:    log.Address,
			Standard: peektypes.StandardERC721,
			From:     common.BytesToAddress(log.Topics[1].Bytes()),
			To:       common.BytesToAddress(log.Topics[2].Bytes()),
			Amount:   big.NewInt(1),
			TokenID:  new(big.Int).SetBytes(log.Topics[3].Bytes()),
		}, true
	default:
		return peektypes.TokenTransfer{}, false
	}
}

func extractTransferSingle(log *types.Log) (peektypes.TokenTransfer, bool) {
	// topics: operator, from, to; data: id, value.
	if len(log.Topics) != 4 || len(log.Data) < 64 {
		return peektypes.TokenTransfer{}, false
	}
	return peektypes.TokenTransfer{
		Token:    log.Address,
		Standard: peektypes.StandardERC1155,
		From:     common.BytesToAddress(log.Topics[2].Bytes()),
		To:       common.BytesToAddress(log.Topics[3].Bytes()),
		TokenID:  new(big.Int).SetBytes(log.Data[:32]),
		Amount:   new(big.Int).SetBytes(log.Data[32:64]),
	}, true
}

func extractTransferBatch(log *types.Log) []peektypes.TokenTransfer {
	if len(log.Topics) != 4 {
		return nil
	}
	event, err := builtinForStandard(peektypes.StandardERC1155).Parsed().EventByID(TransferBatchTopic)
	if err != nil {
		return nil
	}
	values := make(map[string]interface{})
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
		return nil
	}
	ids, okIDs := values["ids"].([]*big.Int)
	amounts, okValues := values["values"].([]*big.Int)
	if !okIDs || !okValues || len(ids) != len(amounts) {
		return nil
	}

	from := common.BytesToAddress(log.Topics[2].Bytes())
	to := common.BytesToAddress(log.Topics[3].Bytes())
	transfers := make([]peektypes.TokenTransfer, 0, len(ids))
	for i := range ids {
		transfers = append(transfers, peektypes.TokenTransfer{
			Token:    log.Address,
			Standard: peektypes.StandardERC1155,
			From:     from,
			To:       to,
			TokenID:  ids[i],
			Amount:   amounts[i],
		})
	}
	return transfers
}

func builtinForStandard(standard peektypes.TokenStandard) *ContractABI {
	for _, builtin := range builtins {
		if builtin.Standard == standard {
			return builtin.template
		}
	}
	return nil
}
