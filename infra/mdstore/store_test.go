package mdstore

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func collect(t *testing.T, s *Store, from, to uint64) []uint64 {
	t.Helper()
	var got []uint64
	require.NoError(t, s.Range(from, to, func(seq uint64, _ []byte) error {
		got = append(got, seq)
		return nil
	}))
	return got
}

func TestPutGet(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.Put(1, []byte("a")))
	require.NoError(t, s.Put(2, []byte("b")))

	v, err := s.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v)

	_, err = s.Get(3)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRange_OrderedAcrossDigitBoundaries(t *testing.T) {
	s := openMem(t)
	for _, seq := range []uint64{10, 9, 100, 1, 11} {
		require.NoError(t, s.Put(seq, []byte{byte(seq)}))
	}

	assert.Equal(t, []uint64{1, 9, 10, 11, 100}, collect(t, s, 0, 0))
	assert.Equal(t, []uint64{9, 10, 11}, collect(t, s, 9, 100))

	last, ok, err := s.Last()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), last)
}

func TestRange_StopsOnError(t *testing.T) {
	s := openMem(t)
	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, s.Put(seq, nil))
	}
	stop := errors.New("stop")
	n := 0
	err := s.Range(0, 0, func(uint64, []byte) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	assert.True(t, errors.Is(err, stop))
	assert.Equal(t, 2, n)
}

func TestTruncateBefore(t *testing.T) {
	s := openMem(t)
	for seq := uint64(1); seq <= 6; seq++ {
		require.NoError(t, s.Put(seq, nil))
	}
	require.NoError(t, s.TruncateBefore(4))
	assert.Equal(t, []uint64{4, 5, 6}, collect(t, s, 0, 0))
}

func TestLast_Empty(t *testing.T) {
	s := openMem(t)
	_, ok, err := s.Last()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_Dir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Put(7, []byte("x")))
	require.NoError(t, s.Close())

	s, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)
}
