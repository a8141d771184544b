// Package rpc implements the tagged request/response schema carried
// between the coordinator and a worker (C12): five request kinds paired
// with five response kinds, deterministic length-prefixed binary encoding,
// fixed byte order and field order so both sides agree on the schema
// without a shared IDL.
package rpc

import (
	"github.com/google/uuid"
	"github.com/shardrunner/engine/internal/tensor"
)

// Kind identifies one of the five request/response pairs the protocol
// carries. A worker MUST reply with the response kind paired to the
// request kind it received.
type Kind uint8

const (
	KindAddAQLM Kind = iota
	KindAddINT8
	KindRemoveAQLM
	KindAQLMForward
	KindINT8Forward
)

func (k Kind) String() string {
	switch k {
	case KindAddAQLM:
		return "AddAQLM"
	case KindAddINT8:
		return "AddINT8"
	case KindRemoveAQLM:
		return "RemoveAQLM"
	case KindAQLMForward:
		return "AQLMForward"
	case KindINT8Forward:
		return "INT8Forward"
	default:
		return "Unknown"
	}
}

// Request is implemented by every request variant.
type Request interface {
	Kind() Kind
	// ID is the correlation id assigned by the coordinator, echoed by the
	// worker on the paired response so wire captures and logs can be
	// joined across the two legs of a call.
	ID() uuid.UUID
}

// Response is implemented by every response variant.
type Response interface {
	Kind() Kind
	ID() uuid.UUID
}

type header struct {
	id uuid.UUID
}

func (h header) ID() uuid.UUID { return h.id }

func newHeader() header { return header{id: uuid.New()} }

// AddAQLMRequest installs an AQLM-quantized chunk under Name.
type AddAQLMRequest struct {
	header
	Name       string
	Codebooks  []float32
	Scales     []float32
	Codes      []byte
	OutDim     int32
	InGroupDim int32
}

func (AddAQLMRequest) Kind() Kind { return KindAddAQLM }

// NewAddAQLMRequest constructs a request with a fresh correlation id.
func NewAddAQLMRequest(name string, codebooks, scales []float32, codes []byte, outDim, inGroupDim int32) *AddAQLMRequest {
	return &AddAQLMRequest{header: newHeader(), Name: name, Codebooks: codebooks, Scales: scales, Codes: codes, OutDim: outDim, InGroupDim: inGroupDim}
}

type AddAQLMResponse struct{ header }

func (AddAQLMResponse) Kind() Kind { return KindAddAQLM }

// NewAddAQLMResponse builds a response echoing the request's correlation id.
func NewAddAQLMResponse(id uuid.UUID) *AddAQLMResponse { return &AddAQLMResponse{header{id: id}} }

// AddINT8Request installs an INT8-quantized chunk under Name.
type AddINT8Request struct {
	header
	Name   string
	Scales []float32
	Values []int8
}

func (AddINT8Request) Kind() Kind { return KindAddINT8 }

func NewAddINT8Request(name string, scales []float32, values []int8) *AddINT8Request {
	return &AddINT8Request{header: newHeader(), Name: name, Scales: scales, Values: values}
}

type AddINT8Response struct{ header }

func (AddINT8Response) Kind() Kind { return KindAddINT8 }

func NewAddINT8Response(id uuid.UUID) *AddINT8Response { return &AddINT8Response{header{id: id}} }

// RemoveAQLMRequest uninstalls an AQLM operator previously installed under Name.
type RemoveAQLMRequest struct {
	header
	Name string
}

func (RemoveAQLMRequest) Kind() Kind { return KindRemoveAQLM }

func NewRemoveAQLMRequest(name string) *RemoveAQLMRequest {
	return &RemoveAQLMRequest{header: newHeader(), Name: name}
}

type RemoveAQLMResponse struct{ header }

func (RemoveAQLMResponse) Kind() Kind { return KindRemoveAQLM }

func NewRemoveAQLMResponse(id uuid.UUID) *RemoveAQLMResponse { return &RemoveAQLMResponse{header{id: id}} }

// AQLMForwardRequest asks a worker to run the named AQLM operator's
// forward on X, a 1-row matrix.
type AQLMForwardRequest struct {
	header
	Name string
	X    *tensor.Matrix
}

func (AQLMForwardRequest) Kind() Kind { return KindAQLMForward }

func NewAQLMForwardRequest(name string, x *tensor.Matrix) *AQLMForwardRequest {
	return &AQLMForwardRequest{header: newHeader(), Name: name, X: x}
}

type AQLMForwardResponse struct {
	header
	Y *tensor.Matrix
}

func (AQLMForwardResponse) Kind() Kind { return KindAQLMForward }

func NewAQLMForwardResponse(id uuid.UUID, y *tensor.Matrix) *AQLMForwardResponse {
	return &AQLMForwardResponse{header: header{id: id}, Y: y}
}

// INT8ForwardRequest asks a worker to run the named INT8 operator's
// forward on X, a 1-row matrix.
type INT8ForwardRequest struct {
	header
	Name string
	X    *tensor.Matrix
}

func (INT8ForwardRequest) Kind() Kind { return KindINT8Forward }

func NewINT8ForwardRequest(name string, x *tensor.Matrix) *INT8ForwardRequest {
	return &INT8ForwardRequest{header: newHeader(), Name: name, X: x}
}

type INT8ForwardResponse struct {
	header
	Y *tensor.Matrix
}

func (INT8ForwardResponse) Kind() Kind { return KindINT8Forward }

func NewINT8ForwardResponse(id uuid.UUID, y *tensor.Matrix) *INT8ForwardResponse {
	return &INT8ForwardResponse{header: header{id: id}, Y: y}
}
