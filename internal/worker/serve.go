package worker

import (
	"fmt"
	"log/slog"

	"github.com/shardrunner/engine/internal/rpc"
)

// Server wires a Registry to the rpc codec: Serve deserializes one
// request, dispatches it to the registry, and serializes the paired
// response. A Server processes one request at a time; callers (the
// transport glue) must not call Serve concurrently with itself.
type Server struct {
	registry *Registry
	log      *slog.Logger
}

func NewServer(registry *Registry, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{registry: registry, log: log}
}

// Serve deserializes req, runs it through the registry, and serializes the
// paired response.
func (s *Server) Serve(req []byte) ([]byte, error) {
	decoded, err := rpc.DecodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("worker: decode request: %w", err)
	}

	resp, err := s.dispatch(decoded)
	if err != nil {
		return nil, err
	}

	return rpc.EncodeResponse(resp)
}

func (s *Server) dispatch(req rpc.Request) (rpc.Response, error) {
	switch r := req.(type) {
	case *rpc.AddAQLMRequest:
		s.log.Debug("add aqlm", "name", r.Name, "out_dim", r.OutDim, "in_group_dim", r.InGroupDim)
		s.registry.AddAQLM(r.Name, r.Codebooks, r.Scales, r.Codes, int(r.OutDim), int(r.InGroupDim))
		return rpc.NewAddAQLMResponse(r.ID()), nil
	case *rpc.AddINT8Request:
		s.log.Debug("add int8", "name", r.Name)
		s.registry.AddINT8(r.Name, r.Scales, r.Values)
		return rpc.NewAddINT8Response(r.ID()), nil
	case *rpc.RemoveAQLMRequest:
		s.log.Debug("remove aqlm", "name", r.Name)
		s.registry.RemoveAQLM(r.Name)
		return rpc.NewRemoveAQLMResponse(r.ID()), nil
	case *rpc.AQLMForwardRequest:
		y, err := s.registry.AQLMForward(r.Name, r.X)
		if err != nil {
			return nil, fmt.Errorf("worker: aqlm forward %q: %w", r.Name, err)
		}
		return rpc.NewAQLMForwardResponse(r.ID(), y), nil
	case *rpc.INT8ForwardRequest:
		y, err := s.registry.INT8Forward(r.Name, r.X)
		if err != nil {
			return nil, fmt.Errorf("worker: int8 forward %q: %w", r.Name, err)
		}
		return rpc.NewINT8ForwardResponse(r.ID(), y), nil
	default:
		return nil, fmt.Errorf("worker: unsupported request type %T", req)
	}
}
