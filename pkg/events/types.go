// Package events defines the outbound event stream of the data layer.
// Producers publish without blocking; one consumer drains Events() and
// renders or forwards them.
package events

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	peektypes "github.com/0xmhha/ethpeek/pkg/types"
)

// EventType discriminates events on the shared channel.
type EventType string

const (
	TypeLatestBlock        EventType = "latest_block"
	TypeRecentBlocks       EventType = "recent_blocks"
	TypeBlockDetail        EventType = "block_detail"
	TypeTransactionDetail  EventType = "transaction_detail"
	TypeAddressInfo        EventType = "address_info"
	TypeGasInfo            EventType = "gas_info"
	TypeTokenMetadata      EventType = "token_metadata"
	TypeInternalCalls      EventType = "internal_calls"
	TypeEnsResolved        EventType = "ens_resolved"
	TypeSearchResult       EventType = "search_result"
	TypeNewHead            EventType = "new_head"
	TypePendingTx          EventType = "pending_tx"
	TypeStreamConnected    EventType = "stream_connected"
	TypeStreamDisconnected EventType = "stream_disconnected"
	TypeError              EventType = "error"
)

// RequestKey identifies a unit of fetch work. Concurrent requests for
// the same key share one outcome.
type RequestKey struct {
	Category string
	Param    string
}

func (k RequestKey) String() string {
	if k.Param == "" {
		return k.Category
	}
	return fmt.Sprintf("%s:%s", k.Category, k.Param)
}

// Event is anything deliverable on the bus.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Keyed is implemented by events that answer a specific request.
type Keyed interface {
	RequestKey() RequestKey
}

// Base carries the fields shared by request-scoped events. Generation
// is the fetch generation current when the request started; consumers
// drop results from generations older than their view.
type Base struct {
	Key        RequestKey
	Generation uint64
	At         time.Time
}

func (b Base) Timestamp() time.Time   { return b.At }
func (b Base) RequestKey() RequestKey { return b.Key }

// NewBase stamps a request-scoped event.
func NewBase(key RequestKey, generation uint64) Base {
	return Base{Key: key, Generation: generation, At: time.Now()}
}

type LatestBlockEvent struct {
	Base
	Number uint64
}

func (LatestBlockEvent) Type() EventType { return TypeLatestBlock }

type RecentBlocksEvent struct {
	Base
	Blocks []peektypes.BlockSummary
}

func (RecentBlocksEvent) Type() EventType { return TypeRecentBlocks }

type BlockDetailEvent struct {
	Base
	Block *peektypes.BlockDetail
}

func (BlockDetailEvent) Type() EventType { return TypeBlockDetail }

type TransactionDetailEvent struct {
	Base
	Transaction *peektypes.TransactionDetail
}

func (TransactionDetailEvent) Type() EventType { return TypeTransactionDetail }

type AddressInfoEvent struct {
	Base
	Info *peektypes.AddressInfo
}

func (AddressInfoEvent) Type() EventType { return TypeAddressInfo }

type GasInfoEvent struct {
	Base
	Gas *peektypes.GasInfo
}

func (GasInfoEvent) Type() EventType { return TypeGasInfo }

type TokenMetadataEvent struct {
	Base
	Token *peektypes.TokenMetadata
}

func (TokenMetadataEvent) Type() EventType { return TypeTokenMetadata }

// InternalCallsEvent reports transaction traces. Unavailable is set when
// the node exposes no trace API; Calls is empty in that case.
type InternalCallsEvent struct {
	Base
	TxHash      common.Hash
	Calls       []peektypes.InternalCall
	Unavailable bool
}

func (InternalCallsEvent) Type() EventType { return TypeInternalCalls }

type EnsResolvedEvent struct {
	Base
	Name     string
	Address  common.Address
	Resolved bool
}

func (EnsResolvedEvent) Type() EventType { return TypeEnsResolved }

type SearchResultEvent struct {
	Base
	Query  string
	Target peektypes.SearchTarget
	// Found is false when the query parsed but nothing matched it,
	// for example a hash that is neither a transaction nor a block.
	Found bool
}

func (SearchResultEvent) Type() EventType { return TypeSearchResult }

// ErrorEvent is the terminal outcome of a failed request. Failures are
// data on the channel, never panics.
type ErrorEvent struct {
	Base
	Err error
}

func (ErrorEvent) Type() EventType { return TypeError }

// NewHeadEvent announces a block header from the subscription stream.
type NewHeadEvent struct {
	Header *types.Header
	At     time.Time
}

func (NewHeadEvent) Type() EventType        { return TypeNewHead }
func (e NewHeadEvent) Timestamp() time.Time { return e.At }

// PendingTxEvent announces a pending transaction hash from the stream.
type PendingTxEvent struct {
	Hash common.Hash
	At   time.Time
}

func (PendingTxEvent) Type() EventType        { return TypePendingTx }
func (e PendingTxEvent) Timestamp() time.Time { return e.At }

// StreamConnectedEvent marks a successful subscription setup.
type StreamConnectedEvent struct {
	Endpoint string
	At       time.Time
}

func (StreamConnectedEvent) Type() EventType        { return TypeStreamConnected }
func (e StreamConnectedEvent) Timestamp() time.Time { return e.At }

// StreamDisconnectedEvent marks a dropped subscription; the stream
// service reconnects on its own.
type StreamDisconnectedEvent struct {
	Endpoint string
	Reason   string
	At       time.Time
}

func (StreamDisconnectedEvent) Type() EventType        { return TypeStreamDisconnected }
func (e StreamDisconnectedEvent) Timestamp() time.Time { return e.At }
