package chunkcodec_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/grailbio/chunkrestore/chunkcodec"
	"github.com/grailbio/chunkrestore/errors"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 64 * 1024

func TestRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data := make([]byte, testChunkSize)
	r.Read(data)

	encoded, err := chunkcodec.Encode(data, testChunkSize)
	require.NoError(t, err)
	require.Equal(t, byte(chunkcodec.MagicByte), encoded[0])

	decoded, err := chunkcodec.Decode(encoded, testChunkSize)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, decoded))
}

func TestRoundTripZero(t *testing.T) {
	data := make([]byte, testChunkSize)
	encoded, err := chunkcodec.Encode(data, testChunkSize)
	require.NoError(t, err)
	decoded, err := chunkcodec.Decode(encoded, testChunkSize)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, decoded))
}

func TestEncodeRejectsWrongSize(t *testing.T) {
	_, err := chunkcodec.Encode(make([]byte, testChunkSize-1), testChunkSize)
	require.Error(t, err)
	require.True(t, errors.Is(errors.Missized, err))
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, chunkcodec.HeaderSize+4)
	buf[0] = 0x00
	_, err := chunkcodec.Decode(buf, testChunkSize)
	require.Error(t, err)
	require.True(t, errors.Is(errors.Magic, err))
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	data := make([]byte, testChunkSize)
	encoded, err := chunkcodec.Encode(data, testChunkSize)
	require.NoError(t, err)

	truncated := encoded[:chunkcodec.HeaderSize+3]
	_, err = chunkcodec.Decode(truncated, testChunkSize)
	require.Error(t, err)
	require.True(t, errors.Is(errors.Lzo, err))
}

func TestDeclaredSize(t *testing.T) {
	data := make([]byte, testChunkSize)
	encoded, err := chunkcodec.Encode(data, testChunkSize)
	require.NoError(t, err)
	size, err := chunkcodec.DeclaredSize(encoded)
	require.NoError(t, err)
	require.Equal(t, testChunkSize, size)
}
