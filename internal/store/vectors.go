package store

import (
	"encoding/binary"
	"math"
)

// vectorToBytes converts a float32 slice to a byte slice (little-endian).
func vectorToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToVector converts a byte slice back to a float32 slice. A blob whose
// length is not a multiple of 4 is truncated to the largest complete prefix
// rather than rejected; corrupt trailing bytes must not take a search down.
func bytesToVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
