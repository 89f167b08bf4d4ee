// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package airpb

import (
	"encoding"
	"fmt"

	grpcencoding "google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype both ends speak
// (application/grpc+retrovue-air). The clients in this package set it on
// every call, so only servers dialing in from elsewhere need to care.
const CodecName = "retrovue-air"

// Codec moves this package's hand-marshaled messages through gRPC.
type Codec struct{}

func init() { grpcencoding.RegisterCodec(Codec{}) }

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("airpb codec: %T is not a wire message", v)
	}
	return m.MarshalBinary()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(encoding.BinaryUnmarshaler)
	if !ok {
		return fmt.Errorf("airpb codec: %T is not a wire message", v)
	}
	return m.UnmarshalBinary(data)
}
