package rpc

import (
	"reflect"
	"testing"

	"github.com/shardrunner/engine/internal/tensor"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"AddAQLM", NewAddAQLMRequest("layer.q_proj", make([]float32, 2*256*8), []float32{1, 2}, []byte{1, 2, 3, 4}, 2, 1)},
		{"AddINT8", NewAddINT8Request("layer.down_proj", []float32{1, 2, 3}, []int8{1, -2, 3})},
		{"RemoveAQLM", NewRemoveAQLMRequest("layer.q_proj")},
		{"AQLMForward", NewAQLMForwardRequest("layer.q_proj", tensor.New(1, 2, []float32{0.5, -0.5}))},
		{"INT8Forward", NewINT8ForwardRequest("layer.down_proj", tensor.New(1, 3, []float32{1, 2, 3}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeRequest(tt.req)
			if err != nil {
				t.Fatalf("EncodeRequest: %v", err)
			}
			decoded, err := DecodeRequest(encoded)
			if err != nil {
				t.Fatalf("DecodeRequest: %v", err)
			}
			if decoded.Kind() != tt.req.Kind() {
				t.Errorf("kind = %v, want %v", decoded.Kind(), tt.req.Kind())
			}
			if decoded.ID() != tt.req.ID() {
				t.Errorf("id = %v, want %v", decoded.ID(), tt.req.ID())
			}
			if !reflect.DeepEqual(decoded, tt.req) {
				t.Errorf("round trip mismatch:\n got  %#v\n want %#v", decoded, tt.req)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	id := NewAddAQLMRequest("x", make([]float32, 2*256*8), []float32{1}, []byte{1}, 1, 1).ID()

	tests := []struct {
		name string
		resp Response
	}{
		{"AddAQLM", NewAddAQLMResponse(id)},
		{"AddINT8", NewAddINT8Response(id)},
		{"RemoveAQLM", NewRemoveAQLMResponse(id)},
		{"AQLMForward", NewAQLMForwardResponse(id, tensor.New(1, 2, []float32{1, 2}))},
		{"INT8Forward", NewINT8ForwardResponse(id, tensor.New(1, 3, []float32{1, 2, 3}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeResponse(tt.resp)
			if err != nil {
				t.Fatalf("EncodeResponse: %v", err)
			}
			decoded, err := DecodeResponse(encoded)
			if err != nil {
				t.Fatalf("DecodeResponse: %v", err)
			}
			if decoded.Kind() != tt.resp.Kind() {
				t.Errorf("kind = %v, want %v", decoded.Kind(), tt.resp.Kind())
			}
			if decoded.ID() != tt.resp.ID() {
				t.Errorf("id = %v, want %v", decoded.ID(), tt.resp.ID())
			}
			if !reflect.DeepEqual(decoded, tt.resp) {
				t.Errorf("round trip mismatch:\n got  %#v\n want %#v", decoded, tt.resp)
			}
		})
	}
}

func TestDecodeRequestRejectsUnknownKind(t *testing.T) {
	if _, err := DecodeRequest([]byte{255, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}); err == nil {
		t.Error("expected error decoding unknown kind byte")
	}
}
