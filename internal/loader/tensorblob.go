package loader

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/shardrunner/engine/internal/rpcerr"
)

// dtype tags the scalar type of a decoded tensor blob.
type dtype uint8

const (
	dtypeF32 dtype = iota
	dtypeU8
	dtypeI8
)

// decodeTensorBlob reads the fixed little-endian envelope every named blob
// in the store carries: a 1-byte dtype tag, a uint32 element count, then
// that many scalars of the tagged width. Every name in §6 of the spec
// this loader implements carries exactly one tensor, so there is no
// multi-tensor container or string header to parse here.
func decodeTensorBlob(data []byte) (dtype, []byte, error) {
	if len(data) < 5 {
		return 0, nil, fmt.Errorf("%w: blob too short (%d bytes)", rpcerr.ErrParseFailed, len(data))
	}
	dt := dtype(data[0])
	n := binary.LittleEndian.Uint32(data[1:5])
	payload := data[5:]

	var width int
	switch dt {
	case dtypeF32:
		width = 4
	case dtypeU8, dtypeI8:
		width = 1
	default:
		return 0, nil, fmt.Errorf("%w: unknown dtype tag %d", rpcerr.ErrParseFailed, dt)
	}
	if len(payload) != int(n)*width {
		return 0, nil, fmt.Errorf("%w: element count %d does not match payload length %d", rpcerr.ErrParseFailed, n, len(payload))
	}
	return dt, payload, nil
}

func decodeF32Blob(data []byte) ([]float32, error) {
	dt, payload, err := decodeTensorBlob(data)
	if err != nil {
		return nil, err
	}
	if dt != dtypeF32 {
		return nil, fmt.Errorf("%w: expected f32 tensor, got dtype %d", rpcerr.ErrParseFailed, dt)
	}
	out := make([]float32, len(payload)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return out, nil
}

func decodeI8Blob(data []byte) ([]int8, error) {
	dt, payload, err := decodeTensorBlob(data)
	if err != nil {
		return nil, err
	}
	if dt != dtypeI8 {
		return nil, fmt.Errorf("%w: expected i8 tensor, got dtype %d", rpcerr.ErrParseFailed, dt)
	}
	out := make([]int8, len(payload))
	for i, b := range payload {
		out[i] = int8(b)
	}
	return out, nil
}

func decodeU8Blob(data []byte) ([]uint8, error) {
	dt, payload, err := decodeTensorBlob(data)
	if err != nil {
		return nil, err
	}
	if dt != dtypeU8 {
		return nil, fmt.Errorf("%w: expected u8 tensor, got dtype %d", rpcerr.ErrParseFailed, dt)
	}
	return append([]uint8(nil), payload...), nil
}
