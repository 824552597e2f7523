package core_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/hyperledger-labs/yui-packet-relayer/provers/mock"
)

const trustKey = "chain-b/mock-client-0"

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func height(h uint64) clienttypes.Height {
	return clienttypes.NewHeight(0, h)
}

func mockHeader(h uint64) *mock.Header {
	return &mock.Header{
		ChainID: "chain-a",
		Height:  height(h),
		Time:    baseTime.Add(time.Duration(h) * time.Second),
		AppHash: []byte{byte(h)},
	}
}

func trustedAt(h uint64) core.TrustedState {
	return core.TrustedState{ClientID: "mock-client-0", Height: height(h), Timestamp: baseTime}
}

func TestTrustStoreObserve(t *testing.T) {
	s := core.NewTrustStore(nil, "test", 0)

	got, err := s.Observe(trustKey, trustedAt(10))
	require.NoError(t, err)
	require.Equal(t, height(10), got.Height)

	// the host is behind the local state
	got, err = s.Observe(trustKey, trustedAt(5))
	require.NoError(t, err)
	require.Equal(t, height(10), got.Height)

	got, err = s.Observe(trustKey, trustedAt(12))
	require.NoError(t, err)
	require.Equal(t, height(12), got.Height)

	conflicting := trustedAt(12)
	conflicting.HeaderHash = []byte{1}
	_, err = s.Observe(trustKey, conflicting)
	require.NoError(t, err, "a state without a known hash accepts any hash")

	stored, ok, err := s.Get(trustKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, height(12), stored.Height)
}

func TestTrustStoreObserveConflict(t *testing.T) {
	s := core.NewTrustStore(nil, "test", 0)
	ctrl := gomock.NewController(t)
	verifier := NewMockLightClientVerifier(ctrl)

	h := mockHeader(11)
	verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&core.TrustedState{Height: height(11), HeaderHash: h.Hash()}, nil)

	_, err := s.Observe(trustKey, trustedAt(10))
	require.NoError(t, err)
	_, err = s.Apply(trustKey, trustedAt(10), verifier, []core.Header{h})
	require.NoError(t, err)

	forged := trustedAt(11)
	forged.HeaderHash = []byte("forged")
	_, err = s.Observe(trustKey, forged)
	require.ErrorIs(t, err, core.ErrVerification)
}

func TestTrustStoreApply(t *testing.T) {
	cases := []struct {
		name       string
		headers    []core.Header
		verify     func(v *MockLightClientVerifierMockRecorder)
		wantHeight uint64
		wantErr    error
	}{
		{
			name:    "advances to the last header",
			headers: []core.Header{mockHeader(11), mockHeader(15)},
			verify: func(v *MockLightClientVerifierMockRecorder) {
				v.Verify(gomock.Any(), gomock.Len(2)).Return(&core.TrustedState{Height: height(15), HeaderHash: mockHeader(15).Hash()}, nil)
			},
			wantHeight: 15,
		},
		{
			name:       "no headers",
			headers:    nil,
			verify:     func(v *MockLightClientVerifierMockRecorder) {},
			wantHeight: 10,
		},
		{
			name:    "verification failure leaves the state unchanged",
			headers: []core.Header{mockHeader(11)},
			verify: func(v *MockLightClientVerifierMockRecorder) {
				v.Verify(gomock.Any(), gomock.Any()).Return(nil, errors.New("bad signature"))
			},
			wantHeight: 10,
			wantErr:    core.ErrVerification,
		},
		{
			name:    "invalid header is reported as such",
			headers: []core.Header{mockHeader(11)},
			verify: func(v *MockLightClientVerifierMockRecorder) {
				v.Verify(gomock.Any(), gomock.Any()).Return(nil, errors.Wrap(core.ErrInvalidHeader, "unlinked"))
			},
			wantHeight: 10,
			wantErr:    core.ErrInvalidHeader,
		},
		{
			name:       "headers out of order",
			headers:    []core.Header{mockHeader(15), mockHeader(11)},
			verify:     func(v *MockLightClientVerifierMockRecorder) {},
			wantHeight: 10,
			wantErr:    core.ErrInvalidHeader,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := core.NewTrustStore(nil, "test", 0)
			ctrl := gomock.NewController(t)
			verifier := NewMockLightClientVerifier(ctrl)
			tc.verify(verifier.EXPECT())

			_, err := s.Observe(trustKey, trustedAt(10))
			require.NoError(t, err)

			_, err = s.Apply(trustKey, trustedAt(10), verifier, tc.headers)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			got, ok, err := s.Get(trustKey)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, height(tc.wantHeight), got.Height)
		})
	}
}

func TestTrustStoreApplyNeverDecreases(t *testing.T) {
	s := core.NewTrustStore(nil, "test", 0)
	ctrl := gomock.NewController(t)
	verifier := NewMockLightClientVerifier(ctrl)

	_, err := s.Observe(trustKey, trustedAt(10))
	require.NoError(t, err)

	h20 := mockHeader(20)
	verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&core.TrustedState{Height: height(20), HeaderHash: h20.Hash()}, nil)
	_, err = s.Apply(trustKey, trustedAt(10), verifier, []core.Header{h20})
	require.NoError(t, err)

	// another relayer updated the host to 15 only; a header below the trusted height does not move it back
	h15 := mockHeader(15)
	verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&core.TrustedState{Height: height(15), HeaderHash: h15.Hash()}, nil)
	got, err := s.Apply(trustKey, trustedAt(10), verifier, []core.Header{h15})
	require.NoError(t, err)
	require.Equal(t, height(20), got.Height)
}

func TestTrustStoreRejectsConflictingHeader(t *testing.T) {
	s := core.NewTrustStore(nil, "test", 0)
	ctrl := gomock.NewController(t)
	verifier := NewMockLightClientVerifier(ctrl)

	_, err := s.Observe(trustKey, trustedAt(10))
	require.NoError(t, err)
	h := mockHeader(12)
	verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&core.TrustedState{Height: height(12), HeaderHash: h.Hash()}, nil)
	_, err = s.Apply(trustKey, trustedAt(10), verifier, []core.Header{h})
	require.NoError(t, err)

	fork := mockHeader(12)
	fork.AppHash = []byte("fork")
	_, err = s.Apply(trustKey, trustedAt(10), verifier, []core.Header{fork})
	require.ErrorIs(t, err, core.ErrVerification)
}

func TestTrustStorePersistence(t *testing.T) {
	db := dbm.NewMemDB()
	ctrl := gomock.NewController(t)
	verifier := NewMockLightClientVerifier(ctrl)

	s := core.NewTrustStore(db, "test", 0)
	_, err := s.Observe(trustKey, trustedAt(10))
	require.NoError(t, err)
	h := mockHeader(13)
	verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&core.TrustedState{Height: height(13), Timestamp: h.Time, HeaderHash: h.Hash()}, nil)
	_, err = s.Apply(trustKey, trustedAt(10), verifier, []core.Header{h})
	require.NoError(t, err)

	restored := core.NewTrustStore(db, "test", 0)
	got, ok, err := restored.Get(trustKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, height(13), got.Height)
	require.Equal(t, h.Hash(), got.HeaderHash)
	require.Equal(t, "mock-client-0", got.ClientID)

	other := core.NewTrustStore(db, "other", 0)
	_, ok, err = other.Get(trustKey)
	require.NoError(t, err)
	require.False(t, ok)
}
