// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package airpb

import (
	"context"

	"google.golang.org/grpc"
)

// PlayoutControlName is the fully qualified gRPC service name. AIR
// implements the service; Core is the client. The server interface and
// desc live here so tests can stand up a fake AIR.
const PlayoutControlName = "retrovue.air.v1.PlayoutControl"

const playoutMethodPrefix = "/" + PlayoutControlName + "/"

// PlayoutControlServer is the playout engine's control surface.
type PlayoutControlServer interface {
	GetVersion(context.Context, *GetVersionRequest) (*GetVersionReply, error)
	StartChannel(context.Context, *StartChannelRequest) (*CommandReply, error)
	LoadPreview(context.Context, *LoadPreviewRequest) (*CommandReply, error)
	AttachStream(context.Context, *AttachStreamRequest) (*CommandReply, error)
	SwitchToLive(context.Context, *ChannelRequest) (*CommandReply, error)
	StopChannel(context.Context, *ChannelRequest) (*CommandReply, error)
}

func unaryHandler[Req any](method string,
	invoke func(PlayoutControlServer, context.Context, *Req) (any, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(PlayoutControlServer)
		if interceptor == nil {
			return invoke(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return invoke(s, ctx, req.(*Req))
		})
	}
}

// PlayoutControlDesc wires PlayoutControlServer into a grpc.Server.
var PlayoutControlDesc = grpc.ServiceDesc{
	ServiceName: PlayoutControlName,
	HandlerType: (*PlayoutControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetVersion",
			Handler: unaryHandler(playoutMethodPrefix+"GetVersion",
				func(s PlayoutControlServer, ctx context.Context, r *GetVersionRequest) (any, error) {
					return s.GetVersion(ctx, r)
				}),
		},
		{
			MethodName: "StartChannel",
			Handler: unaryHandler(playoutMethodPrefix+"StartChannel",
				func(s PlayoutControlServer, ctx context.Context, r *StartChannelRequest) (any, error) {
					return s.StartChannel(ctx, r)
				}),
		},
		{
			MethodName: "LoadPreview",
			Handler: unaryHandler(playoutMethodPrefix+"LoadPreview",
				func(s PlayoutControlServer, ctx context.Context, r *LoadPreviewRequest) (any, error) {
					return s.LoadPreview(ctx, r)
				}),
		},
		{
			MethodName: "AttachStream",
			Handler: unaryHandler(playoutMethodPrefix+"AttachStream",
				func(s PlayoutControlServer, ctx context.Context, r *AttachStreamRequest) (any, error) {
					return s.AttachStream(ctx, r)
				}),
		},
		{
			MethodName: "SwitchToLive",
			Handler: unaryHandler(playoutMethodPrefix+"SwitchToLive",
				func(s PlayoutControlServer, ctx context.Context, r *ChannelRequest) (any, error) {
					return s.SwitchToLive(ctx, r)
				}),
		},
		{
			MethodName: "StopChannel",
			Handler: unaryHandler(playoutMethodPrefix+"StopChannel",
				func(s PlayoutControlServer, ctx context.Context, r *ChannelRequest) (any, error) {
					return s.StopChannel(ctx, r)
				}),
		},
	},
	Metadata: "playout.proto",
}

// RegisterPlayoutControlServer registers srv on r.
func RegisterPlayoutControlServer(r grpc.ServiceRegistrar, srv PlayoutControlServer) {
	r.RegisterService(&PlayoutControlDesc, srv)
}

// PlayoutControlClient issues control commands to AIR. Calls are pinned
// to this package's codec.
type PlayoutControlClient struct {
	cc grpc.ClientConnInterface
}

func NewPlayoutControlClient(cc grpc.ClientConnInterface) *PlayoutControlClient {
	return &PlayoutControlClient{cc: cc}
}

func (c *PlayoutControlClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, playoutMethodPrefix+method, in, out, opts...)
}

func (c *PlayoutControlClient) GetVersion(ctx context.Context, in *GetVersionRequest, opts ...grpc.CallOption) (*GetVersionReply, error) {
	out := new(GetVersionReply)
	if err := c.invoke(ctx, "GetVersion", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PlayoutControlClient) StartChannel(ctx context.Context, in *StartChannelRequest, opts ...grpc.CallOption) (*CommandReply, error) {
	out := new(CommandReply)
	if err := c.invoke(ctx, "StartChannel", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PlayoutControlClient) LoadPreview(ctx context.Context, in *LoadPreviewRequest, opts ...grpc.CallOption) (*CommandReply, error) {
	out := new(CommandReply)
	if err := c.invoke(ctx, "LoadPreview", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PlayoutControlClient) AttachStream(ctx context.Context, in *AttachStreamRequest, opts ...grpc.CallOption) (*CommandReply, error) {
	out := new(CommandReply)
	if err := c.invoke(ctx, "AttachStream", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PlayoutControlClient) SwitchToLive(ctx context.Context, in *ChannelRequest, opts ...grpc.CallOption) (*CommandReply, error) {
	out := new(CommandReply)
	if err := c.invoke(ctx, "SwitchToLive", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PlayoutControlClient) StopChannel(ctx context.Context, in *ChannelRequest, opts ...grpc.CallOption) (*CommandReply, error) {
	out := new(CommandReply)
	if err := c.invoke(ctx, "StopChannel", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
