package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encodeFloat32Blob packs a float32 vector into a little-endian BLOB, the
// storage representation for the text_embedding column.
func encodeFloat32Blob(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32Blob(blob []byte, dim int) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("embedding blob length %d does not match dim %d", len(blob), dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
