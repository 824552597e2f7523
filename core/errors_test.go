package core_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", errors.Wrap(core.ErrChainUnavailable, "dial"), true},
		{"unconfirmed", errors.Mark(errors.New("timeout"), core.ErrUnconfirmed), true},
		{"height not yet available", &core.HeightNotFoundError{Height: height(5)}, true},
		{"pruned height", errors.Wrap(&core.HeightNotFoundError{Height: height(5), Pruned: true}, "query"), false},
		{"rejected", core.NewRejectedError("bad proof"), false},
		{"already relayed", core.ErrAlreadyRelayed, false},
		{"verification", errors.Wrap(core.ErrVerification, "bad signature"), false},
		{"unknown", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, core.IsTransient(tc.err))
		})
	}
}

func TestHeightNotFoundError(t *testing.T) {
	err := errors.Wrap(&core.HeightNotFoundError{Height: height(5), Pruned: true}, "query")
	require.ErrorIs(t, err, core.ErrHeightNotFound)
	require.True(t, core.IsPrunedHeight(err))
	require.False(t, core.IsPrunedHeight(&core.HeightNotFoundError{Height: height(5)}))
	require.Contains(t, err.Error(), "pruned")
}

func TestRejectedError(t *testing.T) {
	err := errors.Wrap(core.NewRejectedError("code %d", 7), "send")
	require.ErrorIs(t, err, core.ErrRejected)
	require.NotErrorIs(t, context.DeadlineExceeded, core.ErrRejected)

	var rerr *core.RejectedError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "code 7", rerr.Reason)
}
