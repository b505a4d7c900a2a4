package models

import "math"

// EncodeVector converts a float32 vector to the little-endian BLOB layout
// used by the embedding columns (4 bytes per component).
func EncodeVector(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	data := make([]byte, len(vector)*4)
	for i, val := range vector {
		offset := i * 4
		bits := math.Float32bits(val)
		data[offset] = byte(bits)
		data[offset+1] = byte(bits >> 8)
		data[offset+2] = byte(bits >> 16)
		data[offset+3] = byte(bits >> 24)
	}
	return data
}

// DecodeVector converts BLOB data back to []float32. Returns nil for empty
// or truncated data.
func DecodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vector := make([]float32, len(data)/4)
	for i := 0; i < len(vector); i++ {
		offset := i * 4
		bits := uint32(data[offset]) |
			uint32(data[offset+1])<<8 |
			uint32(data[offset+2])<<16 |
			uint32(data[offset+3])<<24
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
