// Package rpc exposes schedulerd's Infer/Stats operations over gRPC.
// There is no protoc-generated message package in this repository (see
// DESIGN.md), so the service is registered directly against a
// grpc.ServiceDesc built by hand, with messages carried by the JSON codec
// in codec.go instead of protobuf wire encoding. Well-known protobuf types
// (durationpb, timestamppb) are still used for the timing fields below,
// since their JSON-tagged struct fields serialize the same way under
// either codec.
package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/kunal/infer-scheduler/internal/registry"
	"github.com/kunal/infer-scheduler/pkg/model"
)

// WireInput is one tensor input as carried over the wire.
type WireInput struct {
	Name     string  `json:"name"`
	Shape    []int64 `json:"shape"`
	Datatype string  `json:"datatype"`
	Data     []byte  `json:"data"`
}

// InferRequest is the wire shape of an enqueue call.
type InferRequest struct {
	Model         string      `json:"model"`
	PriorityLevel uint32      `json:"priority_level"`
	TimeoutUS     uint64      `json:"timeout_us"`
	Inputs        []WireInput `json:"inputs"`
}

// InferResponse is the wire shape of a completed (or rejected) request.
type InferResponse struct {
	Result     any                    `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ReceivedAt *timestamppb.Timestamp `json:"received_at,omitempty"`
	WaitTime   *durationpb.Duration   `json:"wait_time,omitempty"`
}

// StatsRequest names the model whose scheduler stats are requested.
type StatsRequest struct {
	Model string `json:"model"`
}

// StatsResponse mirrors scheduler.Stats over the wire.
type StatsResponse struct {
	Size              int    `json:"size"`
	TotalEnqueued     uint64 `json:"total_enqueued"`
	TotalDequeued     uint64 `json:"total_dequeued"`
	TotalRejected     uint64 `json:"total_rejected"`
	ClosestDeadlineUS int64  `json:"closest_deadline_us"`
	OldestEnqueueUS   int64  `json:"oldest_enqueue_us"`
}

// wireRequest adapts an InferRequest's inputs to model.Request.
type wireRequest struct {
	req *InferRequest
}

func (w wireRequest) Inputs() []model.Input {
	out := make([]model.Input, len(w.req.Inputs))
	for i, in := range w.req.Inputs {
		out[i] = model.Input{Name: in.Name, Shape: in.Shape, Datatype: in.Datatype, Data: in.Data}
	}
	return out
}

func (w wireRequest) BatchSize() uint64 { return 1 }
func (w wireRequest) TimeoutUS() uint64 { return w.req.TimeoutUS }
func (w wireRequest) Model() string     { return w.req.Model }

// Server implements the hand-registered InferenceService.
type Server struct {
	registry *registry.ModelRegistry
}

func NewServer(reg *registry.ModelRegistry) *Server {
	return &Server{registry: reg}
}

// resultSink delivers a completed payload's result back across the gRPC
// handler's goroutine via a buffered channel.
type resultSink struct {
	ch chan sinkResult
}

type sinkResult struct {
	result any
	err    error
}

func (s resultSink) Complete(result any, err error) {
	s.ch <- sinkResult{result: result, err: err}
}

// Infer enqueues req into the named model's scheduler and blocks until the
// runner completes it, the request is rejected, or ctx is cancelled.
func (s *Server) Infer(ctx context.Context, req *InferRequest) (*InferResponse, error) {
	sched, ok := s.registry.Scheduler(req.Model)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown model %q", req.Model)
	}

	receivedAt := time.Now()
	sink := resultSink{ch: make(chan sinkResult, 1)}

	if err := sched.Enqueue(req.PriorityLevel, wireRequest{req: req}, sink); err != nil {
		return nil, err
	}

	select {
	case res := <-sink.ch:
		resp := &InferResponse{
			ReceivedAt: timestamppb.New(receivedAt),
			WaitTime:   durationpb.New(time.Since(receivedAt)),
		}
		if res.err != nil {
			resp.Error = res.err.Error()
			return resp, nil
		}
		resp.Result = res.result
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns the named model's current scheduler pressure.
func (s *Server) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	sched, ok := s.registry.Scheduler(req.Model)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown model %q", req.Model)
	}
	stats := sched.Snapshot()
	return &StatsResponse{
		Size:              stats.Size,
		TotalEnqueued:     stats.TotalEnqueued,
		TotalDequeued:     stats.TotalDequeued,
		TotalRejected:     stats.TotalRejected,
		ClosestDeadlineUS: stats.ClosestDeadlineNS / 1000,
		OldestEnqueueUS:   stats.OldestEnqueueNS / 1000,
	}, nil
}

func inferHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InferRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).Infer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/scheduler.InferenceService/Infer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).Infer(ctx, req.(*InferRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/scheduler.InferenceService/Stats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*Server).Stats(ctx, req.(*StatsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc is the hand-built equivalent of what protoc-gen-go-grpc
// would emit from a .proto file for this service.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "scheduler.InferenceService",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: inferHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inference.proto",
}

// RegisterGRPC registers the scheduler's RPC surface on s.
func RegisterGRPC(s *grpc.Server, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}
