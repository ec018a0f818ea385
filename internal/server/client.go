package server

import (
	"context"
	"errors"
	"io"

	"github.com/obby/tripwire/internal/hub"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Dial creates a feed client connection to addr
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(addr, opts...)
}

// Tail streams feed messages for topics (all when empty) into fn until the
// server ends the stream, ctx is done, or fn returns an error
func Tail(ctx context.Context, conn *grpc.ClientConn, topics []string, fn func(hub.Message) error) error {
	values := make([]any, len(topics))
	for i, topic := range topics {
		values[i] = topic
	}
	req, err := structpb.NewStruct(map[string]any{"topics": values})
	if err != nil {
		return err
	}

	stream, err := conn.NewStream(ctx, &feedServiceDesc.Streams[0], streamMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(StructToMessage(out)); err != nil {
			return err
		}
	}
}
