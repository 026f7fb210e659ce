package client

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// ErrTraceUnavailable means the node exposes neither trace_transaction
// nor debug_traceTransaction. Callers degrade, they do not fail.
var ErrTraceUnavailable = errors.New("trace APIs unavailable on this node")

// parityTrace is one entry of a trace_transaction response.
type parityTrace struct {
	Action struct {
		CallType string          `json:"callType"`
		From     common.Address  `json:"from"`
		To       *common.Address `json:"to"`
		Value    *hexutil.Big    `json:"value"`
		Gas      hexutil.Uint64  `json:"gas"`
	} `json:"action"`
	TraceAddress []int  `json:"traceAddress"`
	Type         string `json:"type"`
	Error        string `json:"error,omitempty"`
}

// gethCallFrame is the callTracer frame of a debug_traceTransaction response.
type gethCallFrame struct {
	Type  string          `json:"type"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Gas   hexutil.Uint64  `json:"gas"`
	Error string          `json:"error,omitempty"`
	Calls []gethCallFrame `json:"calls,omitempty"`
}

// TraceTransaction fetches the internal call tree of a transaction,
// flattened depth-first. It tries the Parity trace API first, then the
// Geth debug API, and reports ErrTraceUnavailable when both fail.
func (c *Client) TraceTransaction(ctx context.Context, hash common.Hash) ([]peektypes.InternalCall, error) {
	calls, parityErr := c.parityTrace(ctx, hash)
	if parityErr == nil {
		return calls, nil
	}

	calls, gethErr := c.gethTrace(ctx, hash)
	if gethErr == nil {
		return calls, nil
	}

	c.logger.Debug("trace APIs unavailable",
		zap.String("tx_hash", hash.Hex()),
		zap.NamedError("parity_error", parityErr),
		zap.NamedError("geth_error", gethErr))

	return nil, ErrTraceUnavailable
}

func (c *Client) parityTrace(ctx context.Context, hash common.Hash) ([]peektypes.InternalCall, error) {
	var traces []parityTrace
	if err := c.rpcClient.CallContext(ctx, &traces, "trace_transaction", hash); err != nil {
		return nil, err
	}

	calls := make([]peektypes.InternalCall, 0, len(traces))
	for _, trace := range traces {
		callType := trace.Action.CallType
		if callType == "" {
			callType = trace.Type
		}
		call := peektypes.InternalCall{
			CallType: callType,
			From:     trace.Action.From,
			Gas:      uint64(trace.Action.Gas),
			Depth:    len(trace.TraceAddress),
			Error:    trace.Error,
		}
		if trace.Action.To != nil {
			call.To = *trace.Action.To
		}
		if trace.Action.Value != nil {
			call.Value = trace.Action.Value.ToInt()
		} else {
			call.Value = new(big.Int)
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func (c *Client) gethTrace(ctx context.Context, hash common.Hash) ([]peektypes.InternalCall, error) {
	var root gethCallFrame
	config := map[string]interface{}{
		"tracer":       "callTracer",
		"tracerConfig": map[string]interface{}{"onlyTopCall": false},
	}
	if err := c.rpcClient.CallContext(ctx, &root, "debug_traceTransaction", hash, config); err != nil {
		return nil, err
	}

	var calls []peektypes.InternalCall
	flattenCallFrame(&root, 0, &calls)
	return calls, nil
}

func flattenCallFrame(frame *gethCallFrame, depth int, out *[]peektypes.InternalCall) {
	call := peektypes.InternalCall{
		CallType: frame.Type,
		From:     frame.From,
		Gas:      uint64(frame.Gas),
		Depth:    depth,
		Error:    frame.Error,
	}
	if frame.To != nil {
		call.To = *frame.To
	}
	if frame.Value != nil {
		call.Value = frame.Value.ToInt()
	} else {
		call.Value = new(big.Int)
	}
	*out = append(*out, call)

	for i := range frame.Calls {
		flattenCallFrame(&frame.Calls[i], depth+1, out)
	}
}
