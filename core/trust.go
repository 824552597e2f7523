package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
)

const defaultTrustHistory = 1024

// TrustedState is the light client state of a chain as seen by its counterparty.
type TrustedState struct {
	ClientID   string             `json:"client_id"`
	Height     clienttypes.Height `json:"height"`
	Timestamp  time.Time          `json:"timestamp"`
	Commitment []byte             `json:"commitment"`
	HeaderHash []byte             `json:"header_hash"`
}

func (ts TrustedState) String() string {
	return fmt.Sprintf("%s@%v(%X)", ts.ClientID, ts.Height, ts.HeaderHash)
}

// LightClientVerifier verifies headers of one consensus family.
type LightClientVerifier interface {
	// ClientType returns the consensus family this verifier handles
	ClientType() string

	// Verify applies headers in increasing height order on top of trusted and returns the new state.
	// A header that cannot be linked to the trusted state fails with ErrInvalidHeader.
	Verify(trusted TrustedState, headers []Header) (*TrustedState, error)
}

// TrustStore keeps the trusted states owned by one relay path together with the hashes of
// the headers verified so far. It is not safe for concurrent use: the owning path is its only writer.
type TrustStore struct {
	db      dbm.DB
	prefix  []byte
	history uint64
	states  map[string]*TrustedState
}

// NewTrustStore returns a store that persists into db under prefix.
// history bounds the number of verified header hashes kept per entry.
func NewTrustStore(db dbm.DB, prefix string, history uint64) *TrustStore {
	if db == nil {
		db = dbm.NewMemDB()
	}
	if history == 0 {
		history = defaultTrustHistory
	}
	return &TrustStore{
		db:      db,
		prefix:  []byte(prefix + "/"),
		history: history,
		states:  make(map[string]*TrustedState),
	}
}

// TrustKey returns the store key for the view that hostChainID has of a client.
func TrustKey(hostChainID, clientID string) string {
	return hostChainID + "/" + clientID
}

// Get returns the trusted state of key
func (s *TrustStore) Get(key string) (TrustedState, bool, error) {
	st, err := s.load(key)
	if err != nil || st == nil {
		return TrustedState{}, false, err
	}
	return *st, true, nil
}

// Snapshot returns a copy of every trusted state held in memory
func (s *TrustStore) Snapshot() map[string]TrustedState {
	out := make(map[string]TrustedState, len(s.states))
	for k, v := range s.states {
		out[k] = *v
	}
	return out
}

// Observe reconciles key with the state that the host chain currently stores.
// A host state ahead of the local one replaces it; a host state at the same height must agree with it.
func (s *TrustStore) Observe(key string, observed TrustedState) (TrustedState, error) {
	cur, err := s.load(key)
	if err != nil {
		return TrustedState{}, err
	}
	known, err := s.lookup(key, observed.Height)
	if err != nil {
		return TrustedState{}, err
	}
	if conflicts(known, observed.HeaderHash) {
		return TrustedState{}, errors.Wrapf(ErrVerification, "host state of %s conflicts with the verified header at %v", key, observed.Height)
	}
	switch {
	case cur == nil || observed.Height.GT(cur.Height):
		if len(observed.HeaderHash) == 0 {
			observed.HeaderHash = known
		}
		if err := s.persist(key, observed); err != nil {
			return TrustedState{}, err
		}
		return observed, nil
	case observed.Height.EQ(cur.Height):
		if conflicts(cur.HeaderHash, observed.HeaderHash) || conflicts(cur.Commitment, observed.Commitment) {
			return TrustedState{}, errors.Wrapf(ErrVerification, "host state of %s conflicts with the trusted state at %v", key, cur.Height)
		}
		return *cur, nil
	default:
		// the host is behind, e.g. a client update has not been included yet
		return *cur, nil
	}
}

// Apply verifies headers on top of base and persists the result before returning it.
// base must be the trusted state of key or a host state accepted by Observe, so that
// headers at or below the trusted height are re-verified from a state the store agrees with.
// Trusted heights never decrease: a result below the current state leaves it unchanged.
func (s *TrustStore) Apply(key string, base TrustedState, verifier LightClientVerifier, headers []Header) (TrustedState, error) {
	cur, err := s.load(key)
	if err != nil {
		return TrustedState{}, err
	}
	if cur == nil {
		return TrustedState{}, errors.Wrapf(ErrVerification, "no trusted state for %s", key)
	}
	if base.Height.GT(cur.Height) {
		return TrustedState{}, errors.Wrapf(ErrVerification, "base %v of %s is ahead of the trusted state %v", base.Height, key, cur.Height)
	}
	if len(headers) == 0 {
		return *cur, nil
	}

	prev := base.Height
	for _, h := range headers {
		height := h.GetHeight()
		if !prev.LT(height) {
			return TrustedState{}, errors.Wrapf(ErrInvalidHeader, "headers are not in increasing height order: %v after %v", height, prev)
		}
		prev = height
		if height.GT(cur.Height) {
			continue
		}
		known := cur.HeaderHash
		if !height.EQ(cur.Height) {
			if known, err = s.lookup(key, height); err != nil {
				return TrustedState{}, err
			}
		}
		if conflicts(known, h.Hash()) {
			return TrustedState{}, errors.Wrapf(ErrVerification, "header at %v conflicts with the trusted header of %s", height, key)
		}
	}

	next, err := verifier.Verify(base, headers)
	if err != nil {
		if !errors.Is(err, ErrInvalidHeader) && !errors.Is(err, ErrVerification) {
			err = errors.Mark(err, ErrVerification)
		}
		return TrustedState{}, err
	}
	next.ClientID = cur.ClientID

	for _, h := range headers {
		if err := s.record(key, h.GetHeight(), h.Hash()); err != nil {
			return TrustedState{}, err
		}
	}
	if !next.Height.GT(cur.Height) {
		return *cur, nil
	}
	if err := s.persist(key, *next); err != nil {
		return TrustedState{}, err
	}
	if err := s.prune(key, next.Height); err != nil {
		return TrustedState{}, err
	}
	return *next, nil
}

func conflicts(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && !bytes.Equal(a, b)
}

func (s *TrustStore) stateKey(key string) []byte {
	return append(append(append([]byte{}, s.prefix...), "state/"...), key...)
}

func (s *TrustStore) historyPrefix(key string) []byte {
	return append(append(append(append([]byte{}, s.prefix...), "hist/"...), key...), '/')
}

func (s *TrustStore) historyKey(key string, height clienttypes.Height) []byte {
	bz := s.historyPrefix(key)
	bz = binary.BigEndian.AppendUint64(bz, height.RevisionNumber)
	return binary.BigEndian.AppendUint64(bz, height.RevisionHeight)
}

func (s *TrustStore) load(key string) (*TrustedState, error) {
	if st, ok := s.states[key]; ok {
		return st, nil
	}
	bz, err := s.db.Get(s.stateKey(key))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load trusted state of %s", key)
	} else if bz == nil {
		return nil, nil
	}
	var st TrustedState
	if err := json.Unmarshal(bz, &st); err != nil {
		return nil, errors.Wrapf(err, "failed to decode trusted state of %s", key)
	}
	s.states[key] = &st
	return &st, nil
}

func (s *TrustStore) persist(key string, st TrustedState) error {
	bz, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.db.SetSync(s.stateKey(key), bz); err != nil {
		return errors.Wrapf(err, "failed to persist trusted state of %s", key)
	}
	if len(st.HeaderHash) > 0 {
		if err := s.record(key, st.Height, st.HeaderHash); err != nil {
			return err
		}
	}
	s.states[key] = &st
	return nil
}

func (s *TrustStore) lookup(key string, height clienttypes.Height) ([]byte, error) {
	bz, err := s.db.Get(s.historyKey(key, height))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up header hash of %s at %v", key, height)
	}
	return bz, nil
}

func (s *TrustStore) record(key string, height clienttypes.Height, hash []byte) error {
	return s.db.Set(s.historyKey(key, height), hash)
}

// prune drops header hashes that are too far below the trusted height
func (s *TrustStore) prune(key string, trusted clienttypes.Height) error {
	if trusted.RevisionHeight <= s.history {
		return nil
	}
	bound := clienttypes.NewHeight(trusted.RevisionNumber, trusted.RevisionHeight-s.history)
	it, err := s.db.Iterator(s.historyPrefix(key), s.historyKey(key, bound))
	if err != nil {
		return err
	}
	var stale [][]byte
	for ; it.Valid(); it.Next() {
		stale = append(stale, append([]byte{}, it.Key()...))
	}
	if err := it.Close(); err != nil {
		return err
	}
	for _, k := range stale {
		if err := s.db.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
