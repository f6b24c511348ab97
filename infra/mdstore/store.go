// Package mdstore keeps recently published incremental market data so a
// subscriber that saw a gap can be replayed from a sequence number.
package mdstore

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var ErrNotFound = errors.New("mdstore: sequence not found")

type Config struct {
	// Dir is the pebble directory. Empty keeps everything in memory.
	Dir string `json:"dir"`
	// Retain is how many sequence numbers TruncateBefore keeps when
	// driven by the publisher. 0 keeps everything.
	Retain uint64 `json:"retain"`
}

// Store is safe for concurrent use; pebble serializes writers.
type Store struct {
	db *pebble.DB
}

func Open(cfg Config) (*Store, error) {
	opts := &pebble.Options{}
	dir := cfg.Dir
	if dir == "" {
		opts.FS = vfs.NewMem()
		dir = "mdstore"
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "mdstore: open %s", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// -------------------- API --------------------

// Put records the encoded update published under seq.
func (s *Store) Put(seq uint64, value []byte) error {
	return s.db.Set(keyFor(seq), value, pebble.NoSync)
}

// Get returns a copy of the update stored under seq.
func (s *Store) Get(seq uint64) ([]byte, error) {
	val, closer, err := s.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "seq %d", seq)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return bytes.Clone(val), nil
}

// Range calls fn for every stored seq in [from, to) in order. to == 0
// means no upper bound. value is only valid during the call.
func (s *Store) Range(from, to uint64, fn func(seq uint64, value []byte) error) error {
	opts := &pebble.IterOptions{
		LowerBound: keyFor(from),
		UpperBound: []byte(prefix + "~"),
	}
	if to != 0 {
		opts.UpperBound = keyFor(to)
	}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Last returns the highest stored sequence number.
func (s *Store) Last() (uint64, bool, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return 0, false, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, false, iter.Error()
	}
	seq, err := parseKey(iter.Key())
	return seq, err == nil, err
}

// TruncateBefore drops every seq below seq.
func (s *Store) TruncateBefore(seq uint64) error {
	return s.db.DeleteRange(keyFor(0), keyFor(seq), pebble.NoSync)
}

// -------------------- Helpers --------------------

const prefix = "md/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf(prefix+"%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(prefix))), "%d", &seq)
	return seq, errors.Wrapf(err, "mdstore: key %q", b)
}
