package fetch

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/pkg/abi"
	"github.com/0xmhha/ethpeek/pkg/client"
	"github.com/0xmhha/ethpeek/pkg/events"
	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// FetchTransactionDetail publishes the full projection of one
// transaction: decoded calldata, token transfers, confirmations.
// Pending transactions publish with StatusPending and no receipt
// derived fields.
func (s *Service) FetchTransactionDetail(hash common.Hash) {
	key := events.RequestKey{Category: KeyTransaction, Param: peektypes.NormalizeHash(hash)}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		detail, err := s.transactionDetail(ctx, hash)
		if err != nil {
			return nil, err
		}
		return events.TransactionDetailEvent{Base: base, Transaction: detail}, nil
	})
}

func (s *Service) transactionDetail(ctx context.Context, hash common.Hash) (*peektypes.TransactionDetail, error) {
	tx, pending, err := s.chain.GetTransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	chainID, err := s.resolveChainID(ctx)
	if err != nil {
		return nil, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, err
	}

	detail := &peektypes.TransactionDetail{
		TransactionSummary: peektypes.TransactionSummary{
			Hash:  tx.Hash(),
			From:  from,
			To:    tx.To(),
			Value: tx.Value(),
			Nonce: tx.Nonce(),
		},
		Type:           peektypes.TxType(tx.Type()),
		Status:         peektypes.StatusPending,
		GasLimit:       tx.Gas(),
		GasPrice:       tx.GasPrice(),
		MaxFee:         tx.GasFeeCap(),
		MaxPriorityFee: tx.GasTipCap(),
		Input:          tx.Data(),
	}

	detail.Decoded = s.decodeInput(ctx, tx)

	if pending {
		return detail, nil
	}

	receipt, err := s.chain.GetTransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	detail.BlockNumber = receipt.BlockNumber.Uint64()
	detail.BlockHash = receipt.BlockHash
	detail.Index = uint64(receipt.TransactionIndex)
	detail.GasUsed = receipt.GasUsed
	if receipt.Status == types.ReceiptStatusSuccessful {
		detail.Status = peektypes.StatusSuccess
	} else {
		detail.Status = peektypes.StatusFailed
	}
	if receipt.ContractAddress != (common.Address{}) {
		created := receipt.ContractAddress
		detail.ContractCreated = &created
	}
	detail.TokenTransfers = abi.ExtractTokenTransfers(receipt.Logs)

	latest, err := s.chain.GetLatestBlockNumber(ctx)
	if err == nil && latest >= detail.BlockNumber {
		detail.Confirmations = latest - detail.BlockNumber + 1
	}
	return detail, nil
}

// decodeInput runs the decode ladder: resolved contract ABI, builtin
// selector table, then the signature database. Decoding never fails the
// transaction view.
func (s *Service) decodeInput(ctx context.Context, tx *types.Transaction) *peektypes.DecodedCall {
	input := tx.Data()
	if len(input) < 4 || tx.To() == nil {
		return nil
	}

	var contract *abi.ContractABI
	if s.resolver != nil {
		resolved, err := s.resolver.Resolve(ctx, *tx.To())
		if err != nil {
			s.logger.Debug("abi resolution failed during decode",
				zap.String("to", tx.To().Hex()), zap.Error(err))
		} else {
			contract = resolved
		}
	}

	decoded := s.decoder.DecodeCall(input, contract)
	if decoded == nil || decoded.Method != "" || s.resolver == nil {
		return decoded
	}

	// Last resort: the public signature database.
	signature, err := s.resolver.ResolveSelector(ctx, decoded.Selector)
	if err != nil {
		s.logger.Debug("selector lookup failed",
			zap.String("selector", decoded.Selector), zap.Error(err))
		return decoded
	}
	if signature != "" {
		decoded.Signature = signature
		if open := strings.IndexByte(signature, '('); open > 0 {
			decoded.Method = signature[:open]
		}
	}
	return decoded
}

// FetchInternalCalls publishes the flattened trace frames of a
// transaction. A node without trace APIs degrades to an event with
// Unavailable set instead of an error.
func (s *Service) FetchInternalCalls(hash common.Hash) {
	key := events.RequestKey{Category: KeyInternalCalls, Param: peektypes.NormalizeHash(hash)}
	s.dispatch(key, func(ctx context.Context, base events.Base) (events.Event, error) {
		calls, err := s.chain.TraceTransaction(ctx, hash)
		if errors.Is(err, client.ErrTraceUnavailable) {
			return events.InternalCallsEvent{Base: base, TxHash: hash, Unavailable: true}, nil
		}
		if err != nil {
			return nil, err
		}
		return events.InternalCallsEvent{Base: base, TxHash: hash, Calls: calls}, nil
	})
}
