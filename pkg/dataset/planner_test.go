package dataset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openhep/evtkit/pkg/catalog"
)

func fileRecords(sizes ...int64) []catalog.FileRecord {
	records := make([]catalog.FileRecord, len(sizes))
	for i, size := range sizes {
		records[i] = catalog.FileRecord{
			LogicalName: fmt.Sprintf("/store/file_%03d.root", i),
			SizeBytes:   size,
			Valid:       true,
		}
	}
	return records
}

func collect(t *testing.T, it ChunkIterator) []Chunk {
	t.Helper()
	var chunks []Chunk
	for it.Next() {
		chunks = append(chunks, it.At())
	}
	require.NoError(t, it.Err())
	return chunks
}

func TestPackScenario(t *testing.T) {
	// Files sized 800, 1500, 900 against a bound of 2000 pack into three
	// single-file chunks: each subsequent addition would exceed the bound
	// against a non-empty chunk.
	const mb = int64(1000 * 1000)
	chunks := collect(t, Pack(fileRecords(800*mb, 1500*mb, 900*mb), 2000*mb, true))

	require.Len(t, chunks, 3)
	require.Equal(t, 800*mb, chunks[0].SizeBytes)
	require.Equal(t, 1500*mb, chunks[1].SizeBytes)
	require.Equal(t, 900*mb, chunks[2].SizeBytes)
	for _, c := range chunks {
		require.Len(t, c.URLs, 1)
	}
}

func TestPackRespectsBound(t *testing.T) {
	sizes := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	chunks := collect(t, Pack(fileRecords(sizes...), 100, true))

	for _, c := range chunks {
		require.LessOrEqual(t, c.SizeBytes, int64(100))
	}
}

func TestPackKeepsEveryFileInOrder(t *testing.T) {
	records := fileRecords(10, 20, 30, 40, 50, 60, 70, 80, 90, 100)
	chunks := collect(t, Pack(records, 120, true))

	var packed []string
	for _, c := range chunks {
		packed = append(packed, c.URLs...)
	}
	require.Len(t, packed, len(records))
	for i, rec := range records {
		require.Equal(t, rec.LogicalName, packed[i])
	}
}

func TestPackOversizedFileFormsOwnChunk(t *testing.T) {
	chunks := collect(t, Pack(fileRecords(50, 5000, 50), 100, true))

	require.Len(t, chunks, 3)
	require.Equal(t, int64(50), chunks[0].SizeBytes)
	require.Equal(t, int64(5000), chunks[1].SizeBytes)
	require.Len(t, chunks[1].URLs, 1)
	require.Equal(t, int64(50), chunks[2].SizeBytes)
}

func TestPackExactBoundaryFill(t *testing.T) {
	// An exact fill closes the chunk without emitting a trailing empty one.
	chunks := collect(t, Pack(fileRecords(50, 50, 50, 50), 100, true))

	require.Len(t, chunks, 2)
	require.Equal(t, int64(100), chunks[0].SizeBytes)
	require.Equal(t, int64(100), chunks[1].SizeBytes)
}

func TestPackEmptyInput(t *testing.T) {
	require.Empty(t, collect(t, Pack(nil, 100, true)))
}

func TestPackSkipsInvalidRecords(t *testing.T) {
	records := fileRecords(40, 40, 40)
	records[1].Valid = false

	chunks := collect(t, Pack(records, 100, true))
	require.Len(t, chunks, 1)
	require.Equal(t, []string{records[0].LogicalName, records[2].LogicalName}, chunks[0].URLs)

	chunks = collect(t, Pack(records, 100, false))
	require.Len(t, chunks, 2)
	require.Equal(t, int64(80), chunks[0].SizeBytes)
	require.Equal(t, int64(40), chunks[1].SizeBytes)
}

func TestPackDeterministic(t *testing.T) {
	records := fileRecords(33, 66, 99, 11, 22)
	first := collect(t, Pack(records, 100, true))
	second := collect(t, Pack(records, 100, true))
	require.Equal(t, first, second)
}
