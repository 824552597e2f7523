package tendermint

import (
	"context"
	"encoding/hex"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	sdkCtx "github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/tx"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

// SendMsgs signs msgs with the configured key and broadcasts them in one transaction.
// It returns once the transaction passes CheckTx.
func (c *Chain) SendMsgs(ctx context.Context, msgs []sdk.Msg) ([]core.MsgID, error) {
	res, err := c.rawSendMsgs(ctx, msgs)
	if err != nil {
		return nil, err
	}
	var msgIDs []core.MsgID
	for msgIndex := range msgs {
		msgIDs = append(msgIDs, &MsgID{
			txHash:   res.TxHash,
			msgIndex: uint32(msgIndex),
		})
	}
	return msgIDs, nil
}

func (c *Chain) rawSendMsgs(ctx context.Context, msgs []sdk.Msg) (*sdk.TxResponse, error) {
	defer c.UseSDKContext()()
	logger := c.logger

	// Instantiate the client context
	clientCtx := c.CLIContext(0).WithCmdContext(ctx)
	if addr, err := c.keybase.Key(c.config.Key); err != nil {
		return nil, errors.Wrapf(err, "failed to find key %s", c.config.Key)
	} else if from, err := addr.GetAddress(); err != nil {
		return nil, err
	} else {
		clientCtx = clientCtx.WithFromAddress(from)
	}

	// Query account details
	c.limiter.Take()
	txf, err := prepareFactory(clientCtx, c.TxFactory(0))
	if err != nil {
		return nil, errors.Mark(err, core.ErrChainUnavailable)
	}

	// If users pass gas adjustment, then calculate gas
	c.limiter.Take()
	_, adjusted, err := tx.CalculateGas(clientCtx, txf, msgs...)
	if err != nil {
		return nil, classifyABCIError(err)
	}

	// Set the gas amount on the transaction factory
	txf = txf.WithGas(adjusted)

	// Build the transaction builder
	txb, err := txf.BuildUnsignedTx(msgs...)
	if err != nil {
		return nil, err
	}

	// Attach the signature to the transaction
	if err := tx.Sign(ctx, txf, c.config.Key, txb, false); err != nil {
		return nil, err
	}

	// Generate the transaction bytes
	txBytes, err := clientCtx.TxConfig.TxEncoder()(txb.GetTx())
	if err != nil {
		return nil, err
	}

	// Broadcast those bytes
	res, err := clientCtx.BroadcastTx(txBytes)
	if err != nil {
		return nil, errors.Mark(err, core.ErrUnconfirmed)
	}

	if res.Code != 0 {
		// CheckTx failed
		abciErr := errorsmod.ABCIError(res.Codespace, res.Code, res.RawLog)
		logger.ErrorContext(ctx, "failed to send msgs", abciErr,
			"msg_action", core.GetMsgAction(msgs),
			"height", res.Height,
			"code", res.Code,
			"codespace", res.Codespace,
		)
		return nil, classifyABCIError(abciErr)
	}

	logger.InfoContext(ctx, "successfully sent msgs",
		"msg_action", core.GetMsgAction(msgs),
		"tx_hash", res.TxHash,
	)
	return res, nil
}

// classifyABCIError maps an error returned by the chain into the relayer's error taxonomy
func classifyABCIError(err error) error {
	switch {
	case errorsmod.IsOf(err, chantypes.ErrRedundantTx):
		return errors.Mark(err, core.ErrAlreadyRelayed)
	case errorsmod.IsOf(err, sdkerrors.ErrWrongSequence, sdkerrors.ErrMempoolIsFull, sdkerrors.ErrTxInMempoolCache, sdkerrors.ErrOutOfGas):
		// the same msgs may pass later
		return errors.Mark(err, core.ErrUnconfirmed)
	case isABCIError(err):
		return core.NewRejectedError("%v", err)
	default:
		return err
	}
}

// isABCIError reports whether err carries an ABCI code, i.e. the application returned it
func isABCIError(err error) bool {
	var coder interface{ ABCICode() uint32 }
	return errors.As(err, &coder) && coder.ABCICode() != 0
}

// GetMsgResult waits until the transaction of id is committed and its state becomes provable
func (c *Chain) GetMsgResult(ctx context.Context, id core.MsgID) (core.MsgResult, error) {
	msgID, ok := id.(*MsgID)
	if !ok {
		return nil, errors.Errorf("unexpected message id type: %T", id)
	}

	// find tx
	resTx, err := c.waitForCommit(ctx, msgID.txHash)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to query tx %s", msgID.txHash), core.ErrUnconfirmed)
	}

	// check if the tx execution succeeded
	height := c.height(resTx.Height)
	if resTx.TxResult.IsErr() {
		err := errorsmod.ABCIError(resTx.TxResult.Codespace, resTx.TxResult.Code, resTx.TxResult.Log)
		return &MsgResult{
			height:          height,
			txStatus:        false,
			txFailureReason: err.Error(),
		}, nil
	}
	return &MsgResult{
		height:   height,
		txStatus: true,
	}, nil
}

func (c *Chain) waitForCommit(ctx context.Context, txHash string) (*coretypes.ResultTx, error) {
	var resTx *coretypes.ResultTx

	retryInterval := c.averageBlockTime()
	maxRetry := uint(c.config.MaxRetryForCommit)

	if err := retry.Do(func() error {
		var err error
		var recoverable bool
		resTx, recoverable, err = c.rawQueryTx(ctx, txHash)
		if err != nil {
			if recoverable {
				return err
			} else {
				return retry.Unrecoverable(err)
			}
		}
		// In a tendermint chain, when the latest height of the chain is N+1,
		// proofs of states updated up to height N are available.
		// In order to make the proof of the state updated by a tx available just after `sendMsgs`,
		// `waitForCommit` must wait until the latest height is greater than the tx height.
		if height, err := c.LatestHeight(ctx); err != nil {
			return errors.Wrap(err, "failed to obtain latest height")
		} else if height.GetRevisionHeight() <= uint64(resTx.Height) {
			return errors.Errorf("latest_height(%v) is less than or equal to tx_height(%v) yet", height, resTx.Height)
		}
		return nil
	}, retry.Context(ctx), retry.Attempts(maxRetry), retry.Delay(retryInterval), rtyErr); err != nil {
		return resTx, errors.Wrap(err, "failed to make sure that tx is committed")
	}

	return resTx, nil
}

// rawQueryTx returns a tx of which hash equals to `hexTxHash`.
func (c *Chain) rawQueryTx(ctx context.Context, hexTxHash string) (*coretypes.ResultTx, bool, error) {
	txHash, err := hex.DecodeString(hexTxHash)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to decode the hex string of tx hash")
	}

	c.limiter.Take()
	resTx, err := c.client.Tx(ctx, txHash, false)
	if err != nil {
		recoverable := !strings.Contains(err.Error(), "transaction indexing is disabled")
		return nil, recoverable, errors.Wrap(err, "failed to retrieve tx")
	}

	return resTx, false, nil
}

func prepareFactory(clientCtx sdkCtx.Context, txf tx.Factory) (tx.Factory, error) {
	from := clientCtx.GetFromAddress()

	if err := txf.AccountRetriever().EnsureExists(clientCtx, from); err != nil {
		return txf, err
	}

	initNum, initSeq := txf.AccountNumber(), txf.Sequence()
	if initNum == 0 || initSeq == 0 {
		num, seq, err := txf.AccountRetriever().GetAccountNumberSequence(clientCtx, from)
		if err != nil {
			return txf, err
		}

		if initNum == 0 {
			txf = txf.WithAccountNumber(num)
		}

		if initSeq == 0 {
			txf = txf.WithSequence(seq)
		}
	}

	return txf, nil
}
