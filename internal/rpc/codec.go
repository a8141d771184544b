package rpc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shardrunner/engine/internal/tensor"
)

// byteOrder is fixed so coordinator and worker always agree on the wire
// schema; there is no negotiation.
var byteOrder = binary.LittleEndian

// EncodeRequest serializes req to its length-framed binary wire form.
func EncodeRequest(req Request) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, byteOrder, uint8(req.Kind())); err != nil {
		return nil, err
	}
	if err := writeUUID(buf, req.ID()); err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case *AddAQLMRequest:
		if err := writeString(buf, r.Name); err != nil {
			return nil, err
		}
		if err := writeFloat32s(buf, r.Codebooks); err != nil {
			return nil, err
		}
		if err := writeFloat32s(buf, r.Scales); err != nil {
			return nil, err
		}
		if err := writeBytes(buf, r.Codes); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, byteOrder, r.OutDim); err != nil {
			return nil, err
		}
		if err := binary.Write(buf, byteOrder, r.InGroupDim); err != nil {
			return nil, err
		}
	case *AddINT8Request:
		if err := writeString(buf, r.Name); err != nil {
			return nil, err
		}
		if err := writeFloat32s(buf, r.Scales); err != nil {
			return nil, err
		}
		if err := writeInt8s(buf, r.Values); err != nil {
			return nil, err
		}
	case *RemoveAQLMRequest:
		if err := writeString(buf, r.Name); err != nil {
			return nil, err
		}
	case *AQLMForwardRequest:
		if err := writeString(buf, r.Name); err != nil {
			return nil, err
		}
		if err := writeMatrix(buf, r.X); err != nil {
			return nil, err
		}
	case *INT8ForwardRequest:
		if err := writeString(buf, r.Name); err != nil {
			return nil, err
		}
		if err := writeMatrix(buf, r.X); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("rpc: unknown request type %T", req)
	}

	return buf.Bytes(), nil
}

// DecodeRequest deserializes a request from its wire form.
func DecodeRequest(data []byte) (Request, error) {
	r := bytes.NewReader(data)
	var kindByte uint8
	if err := binary.Read(r, byteOrder, &kindByte); err != nil {
		return nil, err
	}
	id, err := readUUID(r)
	if err != nil {
		return nil, err
	}
	h := header{id: id}

	switch Kind(kindByte) {
	case KindAddAQLM:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		codebooks, err := readFloat32s(r)
		if err != nil {
			return nil, err
		}
		scales, err := readFloat32s(r)
		if err != nil {
			return nil, err
		}
		codes, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		var outDim, inGroupDim int32
		if err := binary.Read(r, byteOrder, &outDim); err != nil {
			return nil, err
		}
		if err := binary.Read(r, byteOrder, &inGroupDim); err != nil {
			return nil, err
		}
		return &AddAQLMRequest{header: h, Name: name, Codebooks: codebooks, Scales: scales, Codes: codes, OutDim: outDim, InGroupDim: inGroupDim}, nil
	case KindAddINT8:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		scales, err := readFloat32s(r)
		if err != nil {
			return nil, err
		}
		values, err := readInt8s(r)
		if err != nil {
			return nil, err
		}
		return &AddINT8Request{header: h, Name: name, Scales: scales, Values: values}, nil
	case KindRemoveAQLM:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		return &RemoveAQLMRequest{header: h, Name: name}, nil
	case KindAQLMForward:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		m, err := readMatrix(r)
		if err != nil {
			return nil, err
		}
		return &AQLMForwardRequest{header: h, Name: name, X: m}, nil
	case KindINT8Forward:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		m, err := readMatrix(r)
		if err != nil {
			return nil, err
		}
		return &INT8ForwardRequest{header: h, Name: name, X: m}, nil
	default:
		return nil, fmt.Errorf("rpc: unknown request kind %d", kindByte)
	}
}

// EncodeResponse serializes resp to its wire form.
func EncodeResponse(resp Response) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, byteOrder, uint8(resp.Kind())); err != nil {
		return nil, err
	}
	if err := writeUUID(buf, resp.ID()); err != nil {
		return nil, err
	}

	switch r := resp.(type) {
	case *AddAQLMResponse, *AddINT8Response, *RemoveAQLMResponse:
		// No payload beyond the header.
		_ = r
	case *AQLMForwardResponse:
		if err := writeMatrix(buf, r.Y); err != nil {
			return nil, err
		}
	case *INT8ForwardResponse:
		if err := writeMatrix(buf, r.Y); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("rpc: unknown response type %T", resp)
	}

	return buf.Bytes(), nil
}

// DecodeResponse deserializes a response from its wire form.
func DecodeResponse(data []byte) (Response, error) {
	r := bytes.NewReader(data)
	var kindByte uint8
	if err := binary.Read(r, byteOrder, &kindByte); err != nil {
		return nil, err
	}
	id, err := readUUID(r)
	if err != nil {
		return nil, err
	}
	h := header{id: id}

	switch Kind(kindByte) {
	case KindAddAQLM:
		return &AddAQLMResponse{header: h}, nil
	case KindAddINT8:
		return &AddINT8Response{header: h}, nil
	case KindRemoveAQLM:
		return &RemoveAQLMResponse{header: h}, nil
	case KindAQLMForward:
		m, err := readMatrix(r)
		if err != nil {
			return nil, err
		}
		return &AQLMForwardResponse{header: h, Y: m}, nil
	case KindINT8Forward:
		m, err := readMatrix(r)
		if err != nil {
			return nil, err
		}
		return &INT8ForwardResponse{header: h, Y: m}, nil
	default:
		return nil, fmt.Errorf("rpc: unknown response kind %d", kindByte)
	}
}

// --- low-level field encoding, length-prefixed throughout ---

func writeUUID(w io.Writer, id uuid.UUID) error {
	_, err := w.Write(id[:])
	return err
}

func readUUID(r io.Reader) (uuid.UUID, error) {
	var id uuid.UUID
	_, err := io.ReadFull(r, id[:])
	return id, err
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, byteOrder, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, byteOrder, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFloat32s(w io.Writer, v []float32) error {
	if err := binary.Write(w, byteOrder, uint32(len(v))); err != nil {
		return err
	}
	return binary.Write(w, byteOrder, v)
}

func readFloat32s(r io.Reader) ([]float32, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	if err := binary.Read(r, byteOrder, out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeInt8s(w io.Writer, v []int8) error {
	if err := binary.Write(w, byteOrder, uint32(len(v))); err != nil {
		return err
	}
	return binary.Write(w, byteOrder, v)
}

func readInt8s(r io.Reader) ([]int8, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return nil, err
	}
	out := make([]int8, n)
	if err := binary.Read(r, byteOrder, out); err != nil {
		return nil, err
	}
	return out, nil
}

// writeMatrix encodes a matrix's (rows, cols) followed by its row-major
// float32 payload, per the wire format fixed for all matrices in the
// protocol.
func writeMatrix(w io.Writer, m *tensor.Matrix) error {
	if err := binary.Write(w, byteOrder, uint32(m.Rows())); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(m.Cols())); err != nil {
		return err
	}
	return binary.Write(w, byteOrder, m.Data())
}

func readMatrix(r io.Reader) (*tensor.Matrix, error) {
	var rows, cols uint32
	if err := binary.Read(r, byteOrder, &rows); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &cols); err != nil {
		return nil, err
	}
	data := make([]float32, rows*cols)
	if err := binary.Read(r, byteOrder, data); err != nil {
		return nil, err
	}
	return tensor.New(int(rows), int(cols), data), nil
}
