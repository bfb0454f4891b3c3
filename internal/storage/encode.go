package storage

import (
	"encoding/binary"
	"math"
)

// EncodeEmbedding packs an embedding into a little-endian float32 byte blob
// for the embedding column.
func EncodeEmbedding(vec []float32) []byte {
	const size = 4
	out := make([]byte, len(vec)*size)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// DecodeEmbedding unpacks a little-endian float32 blob. Trailing bytes that do
// not form a whole float32 are ignored.
func DecodeEmbedding(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
