// Package stream maintains WebSocket subscriptions to new heads and
// pending transactions, forwarding everything to the event bus. The
// connection lifecycle is an explicit state machine; failures reconnect
// with backoff and never escape the service.
package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/0xmhha/ethpeek/pkg/events"
)

// ErrNoEndpoint is returned by Start when no WebSocket endpoint is
// configured. The caller falls back to polling-only operation.
var ErrNoEndpoint = errors.New("stream: no websocket endpoint configured")

// State is the connection lifecycle position.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateReconnecting
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateShutDown:
		return "shut_down"
	default:
		return "invalid"
	}
}

// connection abstracts a live WebSocket session for testing.
type connection interface {
	SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	SubscribePendingTxs(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error)
	Close()
}

type wsConnection struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

func (c *wsConnection) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.ethClient.SubscribeNewHead(ctx, ch)
}

func (c *wsConnection) SubscribePendingTxs(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	return c.rpcClient.EthSubscribe(ctx, ch, "newPendingTransactions")
}

func (c *wsConnection) Close() {
	c.rpcClient.Close()
}

func dialWS(ctx context.Context, endpoint string) (connection, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &wsConnection{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

type Config struct {
	// Endpoint is the ws:// or wss:// URL. Empty disables the service.
	Endpoint       string
	Bus            *events.Bus
	Logger         *zap.Logger
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// dial is swappable in tests.
	dial func(ctx context.Context) (connection, error)
}

type Service struct {
	endpoint       string
	bus            *events.Bus
	logger         *zap.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
	dial           func(ctx context.Context) (connection, error)

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dial := cfg.dial
	if dial == nil {
		endpoint := cfg.Endpoint
		dial = func(ctx context.Context) (connection, error) {
			return dialWS(ctx, endpoint)
		}
	}
	s := &Service{
		endpoint:       cfg.Endpoint,
		bus:            cfg.Bus,
		logger:         logger.Named("stream"),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		dial:           dial,
		done:           make(chan struct{}),
	}
	s.state.Store(int32(StateDisconnected))
	return s
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	return State(s.state.Load())
}

// Start launches the connection loop. It returns ErrNoEndpoint when the
// service has nothing to connect to.
func (s *Service) Start() error {
	if s.endpoint == "" {
		return ErrNoEndpoint
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
	return nil
}

// Stop transitions to ShutDown and waits for the loop to exit. It is a
// no-op when the service never started.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	defer s.state.Store(int32(StateShutDown))

	backoff := time.Duration(0)
	for {
		if ctx.Err() != nil {
			return
		}
		s.state.Store(int32(StateConnecting))

		err := s.connectAndServe(ctx)
		if ctx.Err() != nil {
			return
		}
		// A session that reached Subscribed restarts the backoff
		// schedule from the minimum.
		if s.State() == StateSubscribed {
			backoff = 0
		}

		s.state.Store(int32(StateReconnecting))
		backoff = NextBackoff(backoff, s.initialBackoff, s.maxBackoff)
		s.logger.Warn("stream disconnected, reconnecting",
			zap.Error(err), zap.Duration("backoff", backoff))
		s.publish(events.StreamDisconnectedEvent{
			Endpoint: s.endpoint,
			Reason:   errString(err),
			At:       time.Now(),
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// connectAndServe runs one session: dial, subscribe, forward until the
// subscription breaks or the context ends.
func (s *Service) connectAndServe(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	heads := make(chan *types.Header, 16)
	headSub, err := conn.SubscribeNewHeads(ctx, heads)
	if err != nil {
		return err
	}
	defer headSub.Unsubscribe()

	pending := make(chan common.Hash, 128)
	pendingSub, err := conn.SubscribePendingTxs(ctx, pending)
	if err != nil {
		return err
	}
	defer pendingSub.Unsubscribe()

	s.state.Store(int32(StateSubscribed))
	s.logger.Info("stream subscribed", zap.String("endpoint", s.endpoint))
	s.publish(events.StreamConnectedEvent{Endpoint: s.endpoint, At: time.Now()})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case header := <-heads:
			s.publish(events.NewHeadEvent{Header: header, At: time.Now()})
		case hash := <-pending:
			s.publish(events.PendingTxEvent{Hash: hash, At: time.Now()})
		case err := <-headSub.Err():
			return err
		case err := <-pendingSub.Err():
			return err
		}
	}
}

func (s *Service) publish(event events.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

func errString(err error) string {
	if err == nil {
		return "subscription closed"
	}
	return err.Error()
}
