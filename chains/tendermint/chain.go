package tendermint

import (
	"context"
	"os"
	"path"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	libclient "github.com/cometbft/cometbft/rpc/jsonrpc/client"
	sdkCtx "github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/flags"
	"github.com/cosmos/cosmos-sdk/client/tx"
	"github.com/cosmos/cosmos-sdk/codec"
	keys "github.com/cosmos/cosmos-sdk/crypto/keyring"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	gogogrpc "github.com/cosmos/gogoproto/grpc"
	"go.uber.org/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/hyperledger-labs/yui-packet-relayer/log"
)

var rtyErr = retry.LastErrorOnly(true)

// Chain is an endpoint of a Cosmos SDK chain with the IBC module, reached through a CometBFT node
type Chain struct {
	config ChainConfig

	homePath string
	keybase  keys.Keyring
	client   *rpchttp.HTTP
	grpcConn *grpc.ClientConn
	codec    codec.ProtoCodecMarshaler
	limiter  ratelimit.Limiter
	revision uint64

	timeout time.Duration
	logger  *log.RelayLogger
}

var _ core.Chain = (*Chain)(nil)

// NewChain connects to the node of config. Keys are kept under homePath.
func NewChain(config ChainConfig, homePath string, timeout time.Duration) (*Chain, error) {
	cdc := MakeCodec()
	keybase, err := keys.New(config.ChainID, config.KeyringBackend, keysDir(homePath, config.ChainID), os.Stdin, cdc)
	if err != nil {
		return nil, err
	}

	client, err := newRPCClient(config.RPCAddr, timeout)
	if err != nil {
		return nil, err
	}

	if _, err := sdk.ParseDecCoins(config.GasPrices); err != nil {
		return nil, errors.Wrapf(err, "failed to parse gas prices (%s) for chain %s", config.GasPrices, config.ChainID)
	}

	c := &Chain{
		config:   config,
		homePath: homePath,
		keybase:  keybase,
		client:   client,
		codec:    cdc,
		limiter:  ratelimit.NewUnlimited(),
		revision: clienttypes.ParseChainID(config.ChainID),
		timeout:  timeout,
		logger:   core.GetChainLogger(config.ChainID, "tendermint.chain"),
	}
	if config.QueriesPerSecond > 0 {
		c.limiter = ratelimit.New(config.QueriesPerSecond)
	}
	if config.GRPCAddr != "" {
		conn, err := grpc.NewClient(config.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to connect to %s", config.GRPCAddr)
		}
		c.grpcConn = conn
	}
	return c, nil
}

func (c *Chain) ChainID() string {
	return c.config.ChainID
}

func (c *Chain) Config() ChainConfig {
	return c.config
}

func (c *Chain) Codec() codec.ProtoCodecMarshaler {
	return c.codec
}

func (c *Chain) Keybase() keys.Keyring {
	return c.keybase
}

// GetAddress returns the sdk.AccAddress associated with the configred key
func (c *Chain) GetAddress() (sdk.AccAddress, error) {
	defer c.UseSDKContext()()

	// Signing key for c chain
	srcAddr, err := c.keybase.Key(c.config.Key)
	if err != nil {
		return nil, err
	}

	return srcAddr.GetAddress()
}

// LatestHeight queries the chain for the latest height and returns it
func (c *Chain) LatestHeight(ctx context.Context) (clienttypes.Height, error) {
	c.limiter.Take()
	res, err := c.client.Status(ctx)
	if err != nil {
		return clienttypes.Height{}, errors.Mark(errors.Wrapf(err, "failed to get the status of %s", c.ChainID()), core.ErrChainUnavailable)
	} else if res.SyncInfo.CatchingUp {
		return clienttypes.Height{}, errors.Wrapf(core.ErrChainUnavailable, "node at %s running chain %s not caught up", c.config.RPCAddr, c.ChainID())
	}
	return c.height(res.SyncInfo.LatestBlockHeight), nil
}

func (c *Chain) height(h int64) clienttypes.Height {
	return clienttypes.NewHeight(c.revision, uint64(h))
}

// resolveHeight returns the block height of a query context; zero means latest
func (c *Chain) resolveHeight(ctx core.QueryContext) (int64, error) {
	h := ctx.Height()
	if !h.IsZero() {
		if h.RevisionNumber != c.revision {
			return 0, &core.HeightNotFoundError{Height: h}
		}
		return int64(h.RevisionHeight), nil
	}
	latest, err := c.LatestHeight(ctx.Context())
	if err != nil {
		return 0, err
	}
	return int64(latest.RevisionHeight), nil
}

func (c *Chain) averageBlockTime() time.Duration {
	return time.Duration(c.config.AverageBlockTimeMsec) * time.Millisecond
}

var sdkContextMutex sync.Mutex

// UseSDKContext uses a custom Bech32 account prefix and returns a restore func
// CONTRACT: When using this function, caller must ensure that lock contention
// doesn't cause program to hang.
func (c *Chain) UseSDKContext() func() {
	// Ensure we're the only one using the global context,
	// lock context to begin function
	sdkContextMutex.Lock()

	// Mutate the sdkConf
	sdkConf := sdk.GetConfig()
	sdkConf.SetBech32PrefixForAccount(c.config.AccountPrefix, c.config.AccountPrefix+"pub")
	sdkConf.SetBech32PrefixForValidator(c.config.AccountPrefix+"valoper", c.config.AccountPrefix+"valoperpub")
	sdkConf.SetBech32PrefixForConsensusNode(c.config.AccountPrefix+"valcons", c.config.AccountPrefix+"valconspub")

	// Return the unlock function, caller must lock and ensure that lock is released
	// before any other function needs to use c.UseSDKContext
	return sdkContextMutex.Unlock
}

// CLIContext returns an instance of client.Context derived from Chain
func (c *Chain) CLIContext(height int64) sdkCtx.Context {
	return sdkCtx.Context{}.
		WithChainID(c.config.ChainID).
		WithCodec(c.codec).
		WithInterfaceRegistry(c.codec.InterfaceRegistry()).
		WithTxConfig(authtx.NewTxConfig(c.codec, authtx.DefaultSignModes)).
		WithInput(os.Stdin).
		WithNodeURI(c.config.RPCAddr).
		WithClient(c.client).
		WithAccountRetriever(authtypes.AccountRetriever{}).
		WithBroadcastMode(flags.BroadcastSync).
		WithKeyring(c.keybase).
		WithOutputFormat("json").
		WithFrom(c.config.Key).
		WithFromName(c.config.Key).
		WithSkipConfirmation(true).
		WithHeight(height)
}

// TxFactory returns an instance of tx.Factory derived from
func (c *Chain) TxFactory(height int64) tx.Factory {
	ctx := c.CLIContext(height)
	return tx.Factory{}.
		WithAccountRetriever(ctx.AccountRetriever).
		WithChainID(c.config.ChainID).
		WithTxConfig(ctx.TxConfig).
		WithGasAdjustment(c.config.GasAdjustment).
		WithGasPrices(c.config.GasPrices).
		WithKeybase(c.keybase).
		WithSignMode(signing.SignMode_SIGN_MODE_DIRECT)
}

// queryConn returns the connection module queries are sent through at height
func (c *Chain) queryConn(height int64) gogogrpc.ClientConn {
	if c.grpcConn != nil {
		return c.grpcConn
	}
	return c.CLIContext(height)
}

// KeysDir returns the path to the keys for this chain
func keysDir(home, chainID string) string {
	return path.Join(home, "keys", chainID)
}

func newRPCClient(addr string, timeout time.Duration) (*rpchttp.HTTP, error) {
	httpClient, err := libclient.DefaultHTTPClient(addr)
	if err != nil {
		return nil, err
	}

	httpClient.Timeout = timeout
	rpcClient, err := rpchttp.NewWithClient(addr, "/websocket", httpClient)
	if err != nil {
		return nil, err
	}

	return rpcClient, nil
}
