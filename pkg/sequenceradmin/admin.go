// Package sequenceradmin is a small gRPC control-plane over a running
// Sequencer: Stats and TriggerCheckpoint, exposed alongside the line
// protocol's own ingest surface so an operator can inspect and force a
// flush without speaking the wire format. The request/response messages
// are the protobuf well-known types (emptypb, wrapperspb, structpb)
// rather than a hand checked-in .proto/.pb.go pair, since no .proto
// source for this service exists to regenerate faithfully; the service
// is registered against google.golang.org/grpc directly.
package sequenceradmin

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/akumuli/sequencer/pkg/cursor"
	"github.com/akumuli/sequencer/pkg/logging"
	"github.com/akumuli/sequencer/pkg/model"
	"github.com/akumuli/sequencer/pkg/sequencer"
	"github.com/akumuli/sequencer/pkg/stats"
)

// ItemHandler receives each value a forced checkpoint's merge drains, in
// the order the Merge Engine emits it. A Server built without one simply
// discards the merge output once it has drained the Ready Set.
type ItemHandler func(cursor.Item)

// Server implements the SequencerAdmin RPCs against a single Sequencer.
type Server struct {
	seq    *sequencer.Sequencer
	stats  stats.Provider
	onItem ItemHandler
	logger logging.Logger
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds a Server bound to seq, reporting through statsProvider
// and forwarding forced-checkpoint merge output to onItem (which may be
// nil to discard it).
func NewServer(seq *sequencer.Sequencer, statsProvider stats.Provider, onItem ItemHandler, opts ...Option) *Server {
	s := &Server{
		seq:    seq,
		stats:  statsProvider,
		onItem: onItem,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the Sequencer's statistics snapshot as a structpb.Struct.
func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(s.stats.GetStats())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "sequenceradmin: building stats struct: %v", err)
	}
	return st, nil
}

// TriggerCheckpoint forces a checkpoint one window ahead of the
// Sequencer's current one, drains the resulting Ready Set through the
// Merge Engine, and returns the new checkpoint id. If a checkpoint or
// merge is already in flight it reports codes.Unavailable, mirroring
// Busy in the ingest path.
func (s *Server) TriggerCheckpoint(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	checkpoint, token := s.seq.ForceCheckpoint()
	if !token.Owns() {
		return nil, status.Error(codes.Unavailable, "sequenceradmin: checkpoint or merge already in flight")
	}

	cur := cursor.NewChannelCursor(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for item := range cur.Items() {
			if item.Done {
				return
			}
			if item.Err != model.StatusSuccess {
				s.logger.Warn("sequenceradmin: forced checkpoint merge reported error, status=%s", item.Err)
				return
			}
			if s.onItem != nil {
				s.onItem(item)
			}
		}
	}()

	s.seq.Merge(token, cur, nil)
	<-done

	return wrapperspb.UInt64(checkpoint), nil
}

// RegisterServer registers s against gs, hand-rolling the grpc.ServiceDesc
// a protoc-gen-go-grpc run would otherwise generate from a .proto file.
func RegisterServer(gs *grpc.Server, s *Server) {
	gs.RegisterService(&serviceDesc, s)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "sequenceradmin.SequencerAdmin",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: statsHandler},
		{MethodName: "TriggerCheckpoint", Handler: triggerCheckpointHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sequenceradmin.proto",
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/sequenceradmin.SequencerAdmin/Stats",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func triggerCheckpointHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*Server).TriggerCheckpoint(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/sequenceradmin.SequencerAdmin/TriggerCheckpoint",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*Server).TriggerCheckpoint(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
