package db

import (
	"encoding/binary"
	"math"
)

// EncodeVector serializes a float32 vector into the little-endian binary
// form FT.SEARCH expects for VECTOR fields and KNN query blobs.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// DecodeVector deserializes a vector previously encoded with EncodeVector.
func DecodeVector(s string) []float32 {
	b := []byte(s)
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
