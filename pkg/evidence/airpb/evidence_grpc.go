// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package airpb

import (
	"context"

	"google.golang.org/grpc"
)

// EvidenceServiceName is the fully qualified gRPC service name.
const EvidenceServiceName = "retrovue.air.v1.EvidenceService"

const evidenceStreamMethod = "/" + EvidenceServiceName + "/EvidenceStream"

// EvidenceServiceServer is implemented by Core's evidence server.
type EvidenceServiceServer interface {
	EvidenceStream(EvidenceStream) error
}

// EvidenceStream is the server view of one bidi evidence stream.
type EvidenceStream interface {
	Send(*Ack) error
	Recv() (*EvidenceFromAir, error)
	Context() context.Context
}

type evidenceStream struct {
	grpc.ServerStream
}

func (s *evidenceStream) Send(a *Ack) error { return s.ServerStream.SendMsg(a) }

func (s *evidenceStream) Recv() (*EvidenceFromAir, error) {
	m := new(EvidenceFromAir)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func evidenceStreamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(EvidenceServiceServer).EvidenceStream(&evidenceStream{stream})
}

// EvidenceServiceDesc wires EvidenceServiceServer into a grpc.Server.
var EvidenceServiceDesc = grpc.ServiceDesc{
	ServiceName: EvidenceServiceName,
	HandlerType: (*EvidenceServiceServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "EvidenceStream",
		Handler:       evidenceStreamHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "evidence.proto",
}

// RegisterEvidenceServiceServer registers srv on r.
func RegisterEvidenceServiceServer(r grpc.ServiceRegistrar, srv EvidenceServiceServer) {
	r.RegisterService(&EvidenceServiceDesc, srv)
}

// EvidenceStreamClient is the AIR-side view of the stream. Core ships it
// for its own tests and for AIR simulators.
type EvidenceStreamClient interface {
	Send(*EvidenceFromAir) error
	Recv() (*Ack, error)
	CloseSend() error
	Context() context.Context
}

type evidenceStreamClient struct {
	grpc.ClientStream
}

func (c *evidenceStreamClient) Send(m *EvidenceFromAir) error { return c.ClientStream.SendMsg(m) }

func (c *evidenceStreamClient) Recv() (*Ack, error) {
	a := new(Ack)
	if err := c.ClientStream.RecvMsg(a); err != nil {
		return nil, err
	}
	return a, nil
}

// EvidenceClient opens evidence streams over an established connection.
type EvidenceClient struct {
	cc grpc.ClientConnInterface
}

func NewEvidenceClient(cc grpc.ClientConnInterface) *EvidenceClient {
	return &EvidenceClient{cc: cc}
}

// EvidenceStream opens the bidi stream. The call is pinned to this
// package's codec; callers never pass CallContentSubtype themselves.
func (c *EvidenceClient) EvidenceStream(ctx context.Context, opts ...grpc.CallOption) (EvidenceStreamClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	s, err := c.cc.NewStream(ctx, &EvidenceServiceDesc.Streams[0], evidenceStreamMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &evidenceStreamClient{s}, nil
}
