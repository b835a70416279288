package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendGetSkip(t *testing.T) {
	b := New(8)
	require.NoError(t, b.Append([]byte("hello world")))
	assert.EqualValues(t, 11, b.Len())

	got, err := b.Get(5, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.EqualValues(t, 11, b.Len(), "peek must not consume")

	got, err = b.Get(5, true)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.EqualValues(t, 6, b.Len())

	require.NoError(t, b.Skip(1))
	got, err = b.Get(-1, true)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
	assert.Zero(t, b.Len())
}

// get(n) then skip(n) must be equivalent to get(n, skip=true) in one call.
func TestGetThenSkipEquivalentToGetSkipTrue(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")

	a := New(4)
	require.NoError(t, a.Append(payload))
	peek, err := a.Get(a.Len(), false)
	require.NoError(t, err)
	require.NoError(t, a.Skip(int64(len(peek))))

	b := New(4)
	require.NoError(t, b.Append(payload))
	direct, err := b.Get(b.Len(), true)
	require.NoError(t, err)

	assert.Equal(t, peek, direct)
	assert.Equal(t, a.Len(), b.Len())
}

func TestSkipPastLengthFails(t *testing.T) {
	b := New(1024)
	require.NoError(t, b.Append([]byte("abc")))
	err := b.Skip(10)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestOverflowSpillsToFile(t *testing.T) {
	b := New(4)
	require.NoError(t, b.Append([]byte("ab")))
	assert.Nil(t, b.File(), "still under threshold")
	require.NoError(t, b.Append([]byte("cdefgh")))
	assert.NotNil(t, b.File(), "must have spilled")

	got, err := b.Get(-1, true)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(got))
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	b := New(16)
	require.NoError(t, b.Append([]byte("x")))
	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Append([]byte("y")), ErrClosed)
	_, err := b.Get(1, false)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInterleavedAppendAndConsume(t *testing.T) {
	b := New(1024)
	require.NoError(t, b.Append([]byte("12")))
	got, err := b.Get(1, true)
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	require.NoError(t, b.Append([]byte("34")))
	got, err = b.Get(-1, true)
	require.NoError(t, err)
	assert.Equal(t, "234", string(got))
}
