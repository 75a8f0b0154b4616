package extract_test

import (
	"bytes"
	"testing"

	"github.com/grailbio/chunkrestore/extract"
	"github.com/stretchr/testify/require"
)

const testChunkSize = 8

func chunkBytes(fill byte) []byte {
	b := make([]byte, testChunkSize)
	for i := range b {
		b[i] = fill
	}
	return b
}

// TestStreamWriterReorder sends chunks out of sequence order
// [1, 3, 0, 2] and asserts the sink received them in ascending order.
func TestStreamWriterReorder(t *testing.T) {
	var out bytes.Buffer
	build := extract.NewStreamWriterBuilder(&out, testChunkSize)
	w, err := build(4*testChunkSize, 1)
	require.NoError(t, err)

	chunks := make(chan extract.Block, 4)
	progress := make(chan int64, 4)

	order := []int64{1, 3, 0, 2}
	for _, seq := range order {
		chunks <- extract.Block{Data: chunkBytes(byte('a'+seq)), Seqs: []int64{seq}}
	}
	close(chunks)

	require.NoError(t, w.Receive(chunks, progress))
	close(progress)

	want := bytes.Join([][]byte{
		chunkBytes('a'),
		chunkBytes('b'),
		chunkBytes('c'),
		chunkBytes('d'),
	}, nil)
	require.Equal(t, want, out.Bytes())
}

func TestStreamWriterZeroChunk(t *testing.T) {
	var out bytes.Buffer
	build := extract.NewStreamWriterBuilder(&out, testChunkSize)
	w, err := build(2*testChunkSize, 1)
	require.NoError(t, err)

	chunks := make(chan extract.Block, 2)
	progress := make(chan int64, 2)
	chunks <- extract.Block{Data: chunkBytes('x'), Seqs: []int64{1}}
	chunks <- extract.Block{Zero: true, Seqs: []int64{0}}
	close(chunks)

	require.NoError(t, w.Receive(chunks, progress))
	close(progress)

	want := append(make([]byte, testChunkSize), chunkBytes('x')...)
	require.Equal(t, want, out.Bytes())
}

func TestStreamWriterName(t *testing.T) {
	var out bytes.Buffer
	build := extract.NewStreamWriterBuilder(&out, testChunkSize)
	w, err := build(0, 1)
	require.NoError(t, err)
	require.Equal(t, "stdout", w.Name())
}
