package mock_test

import (
	"context"
	"testing"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	mocktypes "github.com/datachainlab/ibc-mock-client/modules/light-clients/xx-mock/types"
	"github.com/stretchr/testify/require"

	chainmock "github.com/hyperledger-labs/yui-packet-relayer/chains/mock"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/hyperledger-labs/yui-packet-relayer/provers/mock"
)

func height(h uint64) clienttypes.Height {
	return clienttypes.NewHeight(0, h)
}

func TestGetLatestFinalizedHeader(t *testing.T) {
	ctx := context.Background()
	chain := chainmock.NewChain("chain-a")

	_, err := mock.NewProver(chain, 1).GetLatestFinalizedHeader(ctx)
	require.ErrorIs(t, err, core.ErrHeightNotFound)

	chain.AdvanceTo(10)
	h, err := mock.NewProver(chain, 3).GetLatestFinalizedHeader(ctx)
	require.NoError(t, err)
	require.Equal(t, height(7), h.GetHeight())

	header := h.(*mock.Header)
	require.Equal(t, chain.BlockTime(7), header.Time)
	msg, ok := header.ClientMessage().(*mocktypes.Header)
	require.True(t, ok)
	require.Equal(t, uint64(chain.BlockTime(7).UnixNano()), msg.Timestamp)
}

func TestSetupHeadersForUpdate(t *testing.T) {
	ctx := context.Background()
	chain := chainmock.NewChain("chain-a")
	chain.AdvanceTo(5)
	pr := mock.NewProver(chain, 0)
	latest, err := pr.GetLatestFinalizedHeader(ctx)
	require.NoError(t, err)

	headers, err := pr.SetupHeadersForUpdate(ctx, core.TrustedState{Height: height(5)}, latest)
	require.NoError(t, err)
	require.Empty(t, headers)

	headers, err = pr.SetupHeadersForUpdate(ctx, core.TrustedState{Height: height(2)}, latest)
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Equal(t, height(5), headers[0].GetHeight())
}

func TestVerifier(t *testing.T) {
	ctx := context.Background()
	chain := chainmock.NewChain("chain-a")
	chain.AdvanceTo(5)
	pr := mock.NewProver(chain, 0)
	v := pr.Verifier()
	require.Equal(t, mock.ClientType, v.ClientType())

	headerAt := func(h uint64) *mock.Header {
		chain.AdvanceTo(h)
		header, err := pr.GetLatestFinalizedHeader(ctx)
		require.NoError(t, err)
		return header.(*mock.Header)
	}
	h5 := headerAt(5)
	h6 := headerAt(6)
	below := *h5
	below.Height, below.Time = height(3), chain.BlockTime(3)

	// the header at 4 is trusted
	trusted := core.TrustedState{
		ClientID:   "mock-client-0",
		Height:     height(4),
		Timestamp:  chain.BlockTime(4),
		HeaderHash: h5.ParentHash,
		Commitment: h5.ValidatorsHash,
	}
	forged := *h6
	forged.ValidatorsHash = []byte("other validators")
	stale := *h6
	stale.Time = chain.BlockTime(4)

	cases := []struct {
		name    string
		headers []core.Header
		err     error
	}{
		{"adjacent", []core.Header{h5}, nil},
		{"skipping", []core.Header{h6}, nil},
		{"sequence", []core.Header{h5, h6}, nil},
		{"not above trusted", []core.Header{&below}, core.ErrInvalidHeader},
		{"unknown validators", []core.Header{&forged}, core.ErrInvalidHeader},
		{"time not increasing", []core.Header{&stale}, core.ErrVerification},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			next, err := v.Verify(trusted, c.headers)
			if c.err != nil {
				require.ErrorIs(t, err, c.err)
				return
			}
			require.NoError(t, err)
			last := c.headers[len(c.headers)-1]
			require.Equal(t, last.GetHeight(), next.Height)
			require.Equal(t, trusted.ClientID, next.ClientID)
			require.Equal(t, last.Hash(), next.HeaderHash)
		})
	}
}

func TestVerifierRejectsBrokenLink(t *testing.T) {
	chain := chainmock.NewChain("chain-a")
	chain.AdvanceTo(5)
	header, err := mock.NewProver(chain, 0).GetLatestFinalizedHeader(context.Background())
	require.NoError(t, err)

	trusted := core.TrustedState{Height: height(4), Timestamp: chain.BlockTime(4).Add(-time.Second), HeaderHash: []byte("some other header")}
	_, err = mock.Verifier{}.Verify(trusted, []core.Header{header})
	require.ErrorIs(t, err, core.ErrInvalidHeader)
}
