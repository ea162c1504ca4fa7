package wire

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderGrowth(t *testing.T) {
	e := NewEncoder()
	assert.Equal(t, 1024, e.Cap())

	e.PutBytes(make([]byte, 1024))
	assert.Equal(t, 1024, e.Cap())

	e.PutUint8(1)
	assert.Equal(t, 2048, e.Cap())

	e.PutBytes(make([]byte, 3000))
	assert.Equal(t, 4096, e.Cap())
	assert.Equal(t, 4025, e.Len())
}

func TestEncoderGrowthKeepsData(t *testing.T) {
	e := NewEncoder()
	payload := bytes.Repeat([]byte{0x5A}, 1500)
	e.PutUint32(0xCAFEBABE)
	e.PutBytes(payload)

	d := NewDecoder(e.Bytes())
	v, err := d.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), v)
	rest, err := d.Bytes(1500)
	require.NoError(t, err)
	assert.Equal(t, payload, rest)
}

func TestDecoderTruncated(t *testing.T) {
	d := NewDecoder([]byte{1, 2, 3})

	_, err := d.Uint32()
	assert.True(t, errors.Is(err, ErrTruncated))
	assert.Equal(t, 0, d.Consumed())

	v, err := d.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), v)

	_, err = d.Uint16()
	assert.True(t, errors.Is(err, ErrTruncated))
	assert.Equal(t, 2, d.Consumed())
	assert.Equal(t, 1, d.Remaining())
}

func TestDecodeTruncatedRecordIsAtomic(t *testing.T) {
	data, err := Marshal(&position{X: 1, Y: 2})
	require.NoError(t, err)

	out := position{X: 9, Y: 9}
	d := NewDecoder(data[:6])
	err = d.Decode(&out)
	assert.True(t, errors.Is(err, ErrTruncated))
	assert.Equal(t, position{X: 9, Y: 9}, out)
	assert.Equal(t, 0, d.Consumed())
}

func TestEncodeFailureAppendsNothing(t *testing.T) {
	e := NewEncoder()
	e.PutUint8(1)
	err := e.EncodeAll(uint8(2), struct{ N int }{})
	require.Error(t, err)
	assert.Equal(t, []byte{1}, e.Bytes())
}

func TestEncodeAllDecodeAll(t *testing.T) {
	e := NewEncoder()
	require.NoError(t, e.EncodeAll(uint16(5), int32(-1), [2]uint8{7, 8}))
	assert.Equal(t, []byte{0, 5, 0xFF, 0xFF, 0xFF, 0xFF, 7, 8}, e.Bytes())

	var (
		a uint16
		b int32
		c [2]uint8
	)
	d := NewDecoder(e.Bytes())
	require.NoError(t, d.DecodeAll(&a, &b, &c))
	assert.Equal(t, uint16(5), a)
	assert.Equal(t, int32(-1), b)
	assert.Equal(t, [2]uint8{7, 8}, c)
}

func TestPutUintWidths(t *testing.T) {
	for _, tc := range []struct {
		width int
		value uint64
		want  []byte
	}{
		{1, 5, []byte{5}},
		{2, 5, []byte{0, 5}},
		{4, 0x01020304, []byte{1, 2, 3, 4}},
		{8, 1, []byte{0, 0, 0, 0, 0, 0, 0, 1}},
	} {
		e := NewEncoder()
		require.NoError(t, e.PutUint(tc.value, tc.width))
		assert.Equal(t, tc.want, e.Bytes())

		got, err := NewDecoder(e.Bytes()).Uint(tc.width)
		require.NoError(t, err)
		assert.Equal(t, tc.value, got)
	}

	e := NewEncoder()
	assert.True(t, errors.Is(e.PutUint(300, 1), ErrLength))
	assert.True(t, errors.Is(e.PutUint(1, 3), ErrWidth))
	_, err := NewDecoder([]byte{1, 2, 3}).Uint(3)
	assert.True(t, errors.Is(err, ErrWidth))
}

func TestEncoderPool(t *testing.T) {
	e := AcquireEncoder()
	e.PutUint64(1)
	ReleaseEncoder(e)

	again := AcquireEncoder()
	assert.Zero(t, again.Len())
	ReleaseEncoder(again)
	ReleaseEncoder(nil)
}
