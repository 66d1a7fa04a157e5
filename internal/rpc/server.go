package rpc

import (
	"context"
	"net"

	"github.com/BullionBear/sequex/internal/aggregator"
	"github.com/BullionBear/sequex/internal/fanout"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// bookStreamServer is the handler shape registered against serviceDesc.
type bookStreamServer interface {
	BookSummary(*Empty, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "sequex.book.v1.BookStream",
	HandlerType: (*bookStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "BookSummary",
			Handler:       bookSummaryHandler,
			ServerStreams: true,
		},
	},
}

func bookSummaryHandler(srv interface{}, stream grpc.ServerStream) error {
	var req Empty
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	return srv.(bookStreamServer).BookSummary(&req, stream)
}

// Server implements the BookStream gRPC service: one server-streaming
// subscriber task per connected client (spec.md §5, "Per subscriber").
type Server struct {
	broadcaster *fanout.Broadcaster
	logger      zerolog.Logger
}

// NewServer wires a Server to the aggregator's broadcast sink.
func NewServer(broadcaster *fanout.Broadcaster, logger zerolog.Logger) *Server {
	return &Server{broadcaster: broadcaster, logger: logger}
}

// BookSummary streams every published summary to the caller until the
// broadcast closes or the client disconnects.
func (s *Server) BookSummary(_ *Empty, stream grpc.ServerStream) error {
	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	ctx := stream.Context()
	for {
		env, ok := sub.Recv(ctx)
		if !ok {
			return nil
		}
		if env.Lagged > 0 {
			s.logger.Warn().Int("lagged", env.Lagged).Msg("subscriber lagged, summaries dropped")
		}
		if err := stream.SendMsg(toWireSummary(env.Summary)); err != nil {
			return err
		}
	}
}

func toWireSummary(summary aggregator.Summary) *Summary {
	wire := &Summary{
		Spread: mustFloat(summary.Spread),
		Bids:   make([]Level, len(summary.Bids)),
		Asks:   make([]Level, len(summary.Asks)),
	}
	for i, b := range summary.Bids {
		wire.Bids[i] = Level{Price: mustFloat(b.Price), Amount: mustFloat(b.Quantity), Exchange: b.Venue}
	}
	for i, a := range summary.Asks {
		wire.Asks[i] = Level{Price: mustFloat(a.Price), Amount: mustFloat(a.Quantity), Exchange: a.Venue}
	}
	return wire
}

// Run owns the listener for the lifetime of ctx (spec.md §5, "One RPC
// server task"): it serves until ctx is cancelled, then stops gracefully.
func (s *Server) Run(ctx context.Context, address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	grpcServer.RegisterService(&serviceDesc, s)

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(lis) }()

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		return nil
	case err := <-serveErr:
		return err
	}
}
