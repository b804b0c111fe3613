package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aleksandr-gorokhov/komprender/internal/consume"
	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
)

const ServiceName = "komprender.v1.Consumer"

// Consumer is the part of consume.Service the control service drives.
type Consumer interface {
	StartConsumption(ctx context.Context, topic string, mode consume.Mode, sink consume.Sink) error
	StopAllConsumption()
}

type consumerServer interface {
	Consume(req *structpb.Struct, stream grpc.ServerStream) error
	StopAll(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
}

// Messages are well-known struct/empty types, so the descriptor is written
// out by hand instead of generated.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*consumerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StopAll", Handler: stopAllHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Consume", Handler: consumeHandler, ServerStreams: true},
	},
	Metadata: "komprender/v1/consumer.proto",
}

func stopAllHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(consumerServer).StopAll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/StopAll"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(consumerServer).StopAll(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func consumeHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(consumerServer).Consume(in, stream)
}

type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

func StartServer(port int, c Consumer) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	return newServer(lis, c), nil
}

func newServer(lis net.Listener, c Consumer) *Server {
	s := &Server{
		grpc: grpc.NewServer(),
		lis:  lis,
	}
	s.grpc.RegisterService(&serviceDesc, &controlService{consumer: c})
	return s
}

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// ----- service ------------------------------------------------------------

type controlService struct {
	consumer Consumer
}

// Consume streams one session's records. The session ends with the stream:
// a client cancel cancels the session context.
func (c *controlService) Consume(req *structpb.Struct, stream grpc.ServerStream) error {
	topic := req.GetFields()["topic"].GetStringValue()
	if topic == "" {
		return status.Error(codes.InvalidArgument, "topic is required")
	}
	mode := consume.ParseMode(req.GetFields()["mode"].GetStringValue())

	sink := consume.SinkFunc(func(_ string, rec decode.Record) error {
		msg, err := recordStruct(rec)
		if err != nil {
			return err
		}
		return stream.SendMsg(msg)
	})
	logging.Component("transport").Info("remote consume", "topic", topic, "mode", mode.String())
	return statusFor(c.consumer.StartConsumption(stream.Context(), topic, mode, sink))
}

func (c *controlService) StopAll(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	c.consumer.StopAllConsumption()
	return &emptypb.Empty{}, nil
}

func recordStruct(rec decode.Record) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"key":       rec.Key,
		"value":     rec.Value,
		"partition": rec.Partition,
		"offset":    rec.Offset,
	})
}

func statusFor(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, consume.ErrConnectionNotEstablished), errors.Is(err, consume.ErrEmptyAssignment):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, consume.ErrMetadataTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, consume.ErrBrokerUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
