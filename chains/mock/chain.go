package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const DefaultBlockInterval = 5 * time.Second

// GenesisTime is the time of height 0 of every mock chain
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DefaultAcknowledgement is written for every received packet unless WithAcknowledgement is given
var DefaultAcknowledgement = []byte(`{"result":"AQ=="}`)

type channel struct {
	end          core.ChannelEnd
	counterparty core.ChannelEnd
	clientID     string
	order        chantypes.Order
	state        chantypes.State
	nextSendSeq  uint64

	sent map[uint64]*core.PacketInfo
	acks map[uint64]*core.PacketInfo
}

type client struct {
	counterpartyChainID string
	latest              clienttypes.Height
	consensus           map[clienttypes.Height]uint64
}

type txResult struct {
	height clienttypes.Height
	ok     bool
	reason string
}

// Fault replaces the outcome of the next SendMsgs call
type Fault struct {
	Err error
	// Apply executes the transaction before Err is returned, as when a response is lost
	Apply bool
	// Hang blocks the call until its context is done
	Hang bool
}

// Chain is an in-memory chain that executes packet and client update msgs of a mock light client.
// Every state change commits a block. A proof queried at height P proves the state as of the end of block P-1,
// and it is accepted by a counterparty whose client has a consensus state at P.
type Chain struct {
	mu sync.Mutex

	chainID       string
	revision      uint64
	blockInterval time.Duration
	height        uint64
	prunedBelow   uint64
	address       sdk.AccAddress
	ackFunc       func(chantypes.Packet) []byte

	store    *versionedStore
	channels map[string]*channel
	clients  map[string]*client
	txs      map[string]txResult
	applied  [][]sdk.Msg
	faults   []Fault
	events   map[uint64][]abci.Event

	subscribers map[int]chan core.ChainEvent
	nextSubID   int

	calls *CallLog
}

var _ core.Chain = (*Chain)(nil)

type Option func(*Chain)

func WithBlockInterval(d time.Duration) Option {
	return func(c *Chain) { c.blockInterval = d }
}

// WithCallLog records the queries and submissions of the chain into log
func WithCallLog(log *CallLog) Option {
	return func(c *Chain) { c.calls = log }
}

// WithAcknowledgement sets the acknowledgement the application writes for a received packet
func WithAcknowledgement(f func(chantypes.Packet) []byte) Option {
	return func(c *Chain) { c.ackFunc = f }
}

// NewChain returns a chain at height 1
func NewChain(chainID string, opts ...Option) *Chain {
	addr := sha256.Sum256([]byte(chainID))
	c := &Chain{
		chainID:       chainID,
		blockInterval: DefaultBlockInterval,
		height:        1,
		address:       sdk.AccAddress(addr[:20]),
		ackFunc:       func(chantypes.Packet) []byte { return DefaultAcknowledgement },
		store:         newVersionedStore(),
		channels:      make(map[string]*channel),
		clients:       make(map[string]*client),
		txs:           make(map[string]txResult),
		events:        make(map[uint64][]abci.Event),
		subscribers:   make(map[int]chan core.ChainEvent),
		calls:         NewCallLog(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) ChainID() string {
	return c.chainID
}

func (c *Chain) GetAddress() (sdk.AccAddress, error) {
	return c.address, nil
}

func (c *Chain) LatestHeight(ctx context.Context) (clienttypes.Height, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heightOf(c.height), nil
}

// BlockTime returns the time of the block at height
func (c *Chain) BlockTime(height uint64) time.Time {
	return GenesisTime.Add(time.Duration(height) * c.blockInterval)
}

// CallLog returns the log the chain records its calls into
func (c *Chain) CallLog() *CallLog {
	return c.calls
}

func (c *Chain) heightOf(h uint64) clienttypes.Height {
	return clienttypes.NewHeight(c.revision, h)
}

// resolve returns the revision height to query at; zero means latest
func (c *Chain) resolve(h clienttypes.Height) (uint64, error) {
	if h.IsZero() {
		return c.height, nil
	}
	if h.RevisionNumber != c.revision || h.RevisionHeight > c.height {
		return 0, &core.HeightNotFoundError{Height: h}
	}
	if h.RevisionHeight < c.prunedBelow {
		return 0, &core.HeightNotFoundError{Height: h, Pruned: true}
	}
	return h.RevisionHeight, nil
}

func (c *Chain) appHash(h uint64) []byte {
	bz := sha256.Sum256([]byte(fmt.Sprintf("%s/%d", c.chainID, h)))
	return bz[:]
}

// commit writes ws as a new block and emits events of the block to the subscribers
func (c *Chain) commit(ws *writeSet, events []abci.Event) uint64 {
	c.height++
	if ws != nil {
		ws.commit(c.height)
	}
	if len(events) > 0 {
		c.events[c.height] = events
		c.emit(c.height, events)
	}
	return c.height
}

func txHash(chainID string, height uint64) string {
	bz := sha256.Sum256([]byte(fmt.Sprintf("tx/%s/%d", chainID, height)))
	return hex.EncodeToString(bz[:])
}

// Proof returns the proof a mock chain produces for value stored at path, verifiable at height
func Proof(path string, value []byte, height clienttypes.Height) []byte {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(value)
	h.Write([]byte{0})
	h.Write([]byte(height.String()))
	return h.Sum(nil)
}

func channelKey(portID, channelID string) string {
	return portID + "/" + channelID
}

// CallLog is an ordered record of calls shared by chains and provers under test
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) Record(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.calls...)
}
