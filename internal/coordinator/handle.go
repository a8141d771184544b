// Package coordinator implements the coordinator-side handle (C13), the
// sharded parallel linear operators (C14), and shape-driven calibration
// (C15) for those operators.
package coordinator

import (
	"context"
	"fmt"

	"github.com/shardrunner/engine/internal/rpc"
	"github.com/shardrunner/engine/internal/rpcerr"
	"github.com/shardrunner/engine/internal/transport"
)

// Handle owns one worker reference and a single-slot inbound reply
// channel. At most one request may be in flight per handle at a time;
// callers that violate this are making a logic error, not hitting a
// recoverable failure.
type Handle struct {
	workerID string
	poster   transport.Poster
	replies  chan []byte
	inFlight bool
}

// NewHandle creates a handle for workerID that posts through poster. It
// does not register itself with the transport: the caller registers the
// handle (a transport.ReplySink) so that incoming bytes land on replies.
func NewHandle(workerID string, poster transport.Poster) *Handle {
	return &Handle{workerID: workerID, poster: poster, replies: make(chan []byte, 1)}
}

// Deliver implements transport.ReplySink: it places resp into the
// handle's single reply slot.
func (h *Handle) Deliver(resp []byte) {
	h.replies <- resp
}

// WorkerID returns the handle's backing worker identity.
func (h *Handle) WorkerID() string { return h.workerID }

// Send serializes req, hands it to the worker, awaits exactly one reply,
// and deserializes it. An unexpected response kind is a programming error
// surfaced as ErrProtocolFailed.
func (h *Handle) Send(ctx context.Context, req rpc.Request) (rpc.Response, error) {
	if h.inFlight {
		panic(rpcerr.Wrap(rpcerr.ErrInvariantViolation, "handle %s: Send called while a request is already in flight", h.workerID))
	}
	h.inFlight = true
	defer func() { h.inFlight = false }()

	wire, err := rpc.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("coordinator: encode request: %w", err)
	}

	if err := h.poster.Post(ctx, h.workerID, wire); err != nil {
		return nil, rpcerr.Wrap(rpcerr.ErrTransportFailed, "handle %s: post: %v", h.workerID, err)
	}

	select {
	case <-ctx.Done():
		return nil, rpcerr.Wrap(rpcerr.ErrTransportFailed, "handle %s: %v", h.workerID, ctx.Err())
	case respBytes := <-h.replies:
		resp, err := rpc.DecodeResponse(respBytes)
		if err != nil {
			return nil, rpcerr.Wrap(rpcerr.ErrTransportFailed, "handle %s: decode response: %v", h.workerID, err)
		}
		if resp.Kind() != req.Kind() {
			panic(rpcerr.Wrap(rpcerr.ErrProtocolFailed, "handle %s: expected %s response, got %s", h.workerID, req.Kind(), resp.Kind()))
		}
		return resp, nil
	}
}
