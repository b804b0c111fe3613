package transport

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
)

// Client talks to a running `komprender serve`.
type Client struct {
	cc *grpc.ClientConn
}

func Dial(addr string) (*Client, error) {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

func NewClient(cc *grpc.ClientConn) *Client { return &Client{cc: cc} }

// Consume runs a remote session and calls fn for every record until the
// session ends or ctx is cancelled.
func (c *Client) Consume(ctx context.Context, topic, mode string, fn func(decode.Record) error) error {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/Consume")
	if err != nil {
		return err
	}
	req, err := structpb.NewStruct(map[string]any{"topic": topic, "mode": mode})
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
		if err := fn(structRecord(out)); err != nil {
			return err
		}
	}
}

func (c *Client) StopAll(ctx context.Context) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/StopAll", &emptypb.Empty{}, &emptypb.Empty{})
}

func (c *Client) Close() error { return c.cc.Close() }

// structRecord reverses recordStruct. Numbers inside value come back as
// float64.
func structRecord(s *structpb.Struct) decode.Record {
	f := s.GetFields()
	var value any
	if v, ok := f["value"]; ok {
		value = v.AsInterface()
	}
	return decode.Record{
		Key:       f["key"].GetStringValue(),
		Value:     value,
		Partition: int32(f["partition"].GetNumberValue()),
		Offset:    int64(f["offset"].GetNumberValue()),
	}
}
