package mock

import (
	"sort"
)

type version struct {
	height uint64
	value  []byte
}

// versionedStore keeps every value written to a path together with the height of the block that wrote it
type versionedStore struct {
	paths map[string][]version
}

func newVersionedStore() *versionedStore {
	return &versionedStore{paths: make(map[string][]version)}
}

// get returns the value of path as of the end of block height
func (s *versionedStore) get(path string, height uint64) []byte {
	versions := s.paths[path]
	i := sort.Search(len(versions), func(i int) bool { return versions[i].height > height })
	if i == 0 {
		return nil
	}
	return versions[i-1].value
}

// set writes value at height, which must not be lower than any previous write to path.
// A nil value deletes the path.
func (s *versionedStore) set(path string, height uint64, value []byte) {
	versions := s.paths[path]
	if n := len(versions); n > 0 && versions[n-1].height == height {
		versions[n-1].value = value
		return
	}
	s.paths[path] = append(versions, version{height: height, value: value})
}

// writeSet is the buffered writes of a transaction
type writeSet struct {
	base   *versionedStore
	height uint64
	keys   []string
	values map[string][]byte
}

func (s *versionedStore) newWriteSet(height uint64) *writeSet {
	return &writeSet{base: s, height: height, values: make(map[string][]byte)}
}

func (w *writeSet) get(path string) []byte {
	if v, ok := w.values[path]; ok {
		return v
	}
	return w.base.get(path, w.height)
}

func (w *writeSet) set(path string, value []byte) {
	if _, ok := w.values[path]; !ok {
		w.keys = append(w.keys, path)
	}
	w.values[path] = value
}

func (w *writeSet) commit(height uint64) {
	for _, k := range w.keys {
		w.base.set(k, height, w.values[k])
	}
}
