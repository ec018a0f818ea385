package server

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/obby/tripwire/internal/hub"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// FeedServiceName is the fully qualified gRPC service name
const FeedServiceName = "tripwire.v1.Feed"

const streamMethod = "/" + FeedServiceName + "/Stream"

// FeedServer streams feed messages. The request is a Struct with an optional
// "topics" list; every response is a Struct built by MessageToStruct.
type FeedServer interface {
	Stream(req *structpb.Struct, stream grpc.ServerStream) error
}

var feedServiceDesc = grpc.ServiceDesc{
	ServiceName: FeedServiceName,
	HandlerType: (*FeedServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       feedStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "tripwire/v1/feed.proto",
}

func feedStreamHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(FeedServer).Stream(req, stream)
}

// RegisterFeedServer registers srv on s
func RegisterFeedServer(s *grpc.Server, srv FeedServer) {
	s.RegisterService(&feedServiceDesc, srv)
}

// FeedGRPCServer implements FeedServer on top of a hub
type FeedGRPCServer struct {
	hub    *hub.Hub
	logger *slog.Logger
}

// NewFeedGRPCServer creates a new gRPC feed server
func NewFeedGRPCServer(h *hub.Hub, logger *slog.Logger) *FeedGRPCServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FeedGRPCServer{
		hub:    h,
		logger: logger,
	}
}

// Stream implements the Stream RPC
func (s *FeedGRPCServer) Stream(req *structpb.Struct, stream grpc.ServerStream) error {
	topics := topicsFromStruct(req)
	client := s.hub.NewClient(topics...)
	if !s.hub.Register(client) {
		return status.Error(codes.Unavailable, "feed is shut down")
	}
	defer s.hub.Unregister(client)

	s.logger.Debug("grpc feed client connected", "client", client.ID, "topics", topics)

	ctx := stream.Context()
	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return nil
			}
			out, err := MessageToStruct(msg)
			if err != nil {
				s.logger.Error("encoding feed message", "error", err)
				continue
			}
			if err := stream.SendMsg(out); err != nil {
				s.logger.Debug("error sending feed message", "client", client.ID, "error", err)
				return err
			}
		case <-ctx.Done():
			s.logger.Debug("grpc feed client disconnected", "client", client.ID)
			return nil
		}
	}
}

// ServeGRPC serves the feed on lis until ctx is done
func ServeGRPC(ctx context.Context, lis net.Listener, h *hub.Hub, logger *slog.Logger) error {
	s := grpc.NewServer()
	RegisterFeedServer(s, NewFeedGRPCServer(h, logger))

	// Enable reflection for development
	reflection.Register(s)

	go func() {
		select {
		case <-ctx.Done():
		case <-h.Done():
		}
		s.GracefulStop()
	}()

	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// StartGRPCServer listens on addr and serves the feed until ctx is done
func StartGRPCServer(ctx context.Context, addr string, h *hub.Hub, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Info("grpc feed listening", "addr", lis.Addr().String())
	}
	return ServeGRPC(ctx, lis, h, logger)
}

func topicsFromStruct(req *structpb.Struct) []string {
	list := req.GetFields()["topics"].GetListValue()
	if list == nil {
		return nil
	}
	topics := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		if topic := v.GetStringValue(); topic != "" {
			topics = append(topics, topic)
		}
	}
	return topics
}
