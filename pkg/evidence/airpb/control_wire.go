// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package airpb

import (
	"google.golang.org/protobuf/encoding/protowire"
)

func (m *GetVersionRequest) MarshalBinary() ([]byte, error) { return nil, nil }

func (m *GetVersionRequest) UnmarshalBinary(data []byte) error {
	*m = GetVersionRequest{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		if data, err = skipField(num, typ, data[n:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *GetVersionReply) MarshalBinary() ([]byte, error) {
	return appendStringField(nil, 1, m.Version), nil
}

func (m *GetVersionReply) UnmarshalBinary(data []byte) error {
	*m = GetVersionReply{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			if m.Version, data, err = consumeString(data); err != nil {
				return err
			}
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *StartChannelRequest) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, m.ChannelID)
	b = appendStringField(b, 2, m.PlanHandle)
	b = appendStringField(b, 3, m.ProgramFormatJSON)
	return b, nil
}

func (m *StartChannelRequest) UnmarshalBinary(data []byte) error {
	*m = StartChannelRequest{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			if m.ChannelID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 2 && typ == protowire.BytesType:
			if m.PlanHandle, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 3 && typ == protowire.BytesType:
			if m.ProgramFormatJSON, data, err = consumeString(data); err != nil {
				return err
			}
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *LoadPreviewRequest) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, m.ChannelID)
	b = appendStringField(b, 2, m.AssetPath)
	b = appendInt64Field(b, 3, m.StartFrame)
	b = appendInt64Field(b, 4, m.FrameCount)
	b = appendVarintField(b, 5, uint64(m.FPSNum))
	b = appendVarintField(b, 6, uint64(m.FPSDen))
	return b, nil
}

func (m *LoadPreviewRequest) UnmarshalBinary(data []byte) error {
	*m = LoadPreviewRequest{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var v uint64
		switch {
		case num == 1 && typ == protowire.BytesType:
			if m.ChannelID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 2 && typ == protowire.BytesType:
			if m.AssetPath, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 3 && typ == protowire.VarintType:
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.StartFrame = int64(v)
		case num == 4 && typ == protowire.VarintType:
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.FrameCount = int64(v)
		case num == 5 && typ == protowire.VarintType:
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.FPSNum = uint32(v)
		case num == 6 && typ == protowire.VarintType:
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.FPSDen = uint32(v)
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *AttachStreamRequest) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendStringField(b, 1, m.ChannelID)
	b = appendVarintField(b, 2, uint64(m.Transport))
	b = appendStringField(b, 3, m.Endpoint)
	b = appendBoolField(b, 4, m.ReplaceExisting)
	return b, nil
}

func (m *AttachStreamRequest) UnmarshalBinary(data []byte) error {
	*m = AttachStreamRequest{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var v uint64
		switch {
		case num == 1 && typ == protowire.BytesType:
			if m.ChannelID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 2 && typ == protowire.VarintType:
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.Transport = Transport(v)
		case num == 3 && typ == protowire.BytesType:
			if m.Endpoint, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 4 && typ == protowire.VarintType:
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.ReplaceExisting = v != 0
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *ChannelRequest) MarshalBinary() ([]byte, error) {
	return appendStringField(nil, 1, m.ChannelID), nil
}

func (m *ChannelRequest) UnmarshalBinary(data []byte) error {
	*m = ChannelRequest{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			if m.ChannelID, data, err = consumeString(data); err != nil {
				return err
			}
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *CommandReply) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendBoolField(b, 1, m.OK)
	b = appendStringField(b, 2, m.Detail)
	return b, nil
}

func (m *CommandReply) UnmarshalBinary(data []byte) error {
	*m = CommandReply{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		var v uint64
		switch {
		case num == 1 && typ == protowire.VarintType:
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.OK = v != 0
		case num == 2 && typ == protowire.BytesType:
			if m.Detail, data, err = consumeString(data); err != nil {
				return err
			}
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}
