package worker

import (
	"testing"

	"github.com/shardrunner/engine/internal/rpc"
	"github.com/shardrunner/engine/internal/tensor"
)

func TestServeRoundTripsAddAndForward(t *testing.T) {
	server := NewServer(NewRegistry(), nil)

	addReq := rpc.NewAddINT8Request("down_proj", []float32{127, 127}, []int8{10, 20})
	wire, err := rpc.EncodeRequest(addReq)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	respWire, err := server.Serve(wire)
	if err != nil {
		t.Fatalf("Serve(add): %v", err)
	}
	resp, err := rpc.DecodeResponse(respWire)
	if err != nil {
		t.Fatalf("DecodeResponse(add): %v", err)
	}
	if resp.Kind() != rpc.KindAddINT8 || resp.ID() != addReq.ID() {
		t.Fatalf("add response = %+v, want kind AddINT8 id %v", resp, addReq.ID())
	}

	fwdReq := rpc.NewINT8ForwardRequest("down_proj", tensor.NewRow([]float32{1, 1}))
	wire, err = rpc.EncodeRequest(fwdReq)
	if err != nil {
		t.Fatalf("EncodeRequest(forward): %v", err)
	}
	respWire, err = server.Serve(wire)
	if err != nil {
		t.Fatalf("Serve(forward): %v", err)
	}
	resp, err = rpc.DecodeResponse(respWire)
	if err != nil {
		t.Fatalf("DecodeResponse(forward): %v", err)
	}
	fwdResp, ok := resp.(*rpc.INT8ForwardResponse)
	if !ok {
		t.Fatalf("response type = %T, want *rpc.INT8ForwardResponse", resp)
	}
	if fwdResp.Y.Rows() != 1 || fwdResp.Y.Cols() != 1 {
		t.Errorf("Y shape = %v, want (1,1)", fwdResp.Y.Shape())
	}
}

func TestServeForwardOnUnknownOperatorFails(t *testing.T) {
	server := NewServer(NewRegistry(), nil)
	req := rpc.NewINT8ForwardRequest("missing", tensor.NewRow([]float32{1}))
	wire, err := rpc.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if _, err := server.Serve(wire); err == nil {
		t.Error("expected error serving forward against an unknown operator")
	}
}
