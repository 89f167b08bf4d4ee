// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package airpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field helpers. Zero scalars are elided like proto3 does; submessages
// are always emitted when their pointer is set so oneof presence is kept
// even for all-zero payloads. Unknown fields are skipped on decode, which
// keeps old Cores compatible with newer AIRs.

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt64Field(b []byte, num protowire.Number, v int64) []byte {
	return appendVarintField(b, num, uint64(v))
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessageField(b []byte, num protowire.Number, sub []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

func consumeVarint(data []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, nil, protowire.ParseError(n)
	}
	return v, data[n:], nil
}

func consumeString(data []byte) (string, []byte, error) {
	v, n := protowire.ConsumeString(data)
	if n < 0 {
		return "", nil, protowire.ParseError(n)
	}
	return v, data[n:], nil
}

func consumeBytes(data []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, nil, protowire.ParseError(n)
	}
	return v, data[n:], nil
}

func skipField(num protowire.Number, typ protowire.Type, data []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, data)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return data[n:], nil
}

func (m *EvidenceFromAir) MarshalBinary() ([]byte, error) {
	if n := payloadCount(m); n > 1 {
		return nil, fmt.Errorf("evidence envelope has %d payloads set", n)
	}
	var b []byte
	b = appendVarintField(b, 1, uint64(m.SchemaVersion))
	b = appendStringField(b, 2, m.ChannelID)
	b = appendStringField(b, 3, m.PlayoutSessionID)
	b = appendVarintField(b, 4, m.Sequence)
	b = appendStringField(b, 5, m.EventUUID)
	b = appendInt64Field(b, 6, m.EmittedUTCMS)
	switch {
	case m.Hello != nil:
		b = appendMessageField(b, 10, m.Hello.appendTo(nil))
	case m.BlockStart != nil:
		b = appendMessageField(b, 11, m.BlockStart.appendTo(nil))
	case m.SegmentStart != nil:
		b = appendMessageField(b, 12, m.SegmentStart.appendTo(nil))
	case m.SegmentEnd != nil:
		b = appendMessageField(b, 13, m.SegmentEnd.appendTo(nil))
	case m.BlockFence != nil:
		b = appendMessageField(b, 14, m.BlockFence.appendTo(nil))
	}
	return b, nil
}

func payloadCount(m *EvidenceFromAir) int {
	n := 0
	for _, set := range []bool{
		m.Hello != nil, m.BlockStart != nil, m.SegmentStart != nil,
		m.SegmentEnd != nil, m.BlockFence != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func (m *EvidenceFromAir) UnmarshalBinary(data []byte) error {
	*m = EvidenceFromAir{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.SchemaVersion = uint32(v)
		case num == 2 && typ == protowire.BytesType:
			if m.ChannelID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 3 && typ == protowire.BytesType:
			if m.PlayoutSessionID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 4 && typ == protowire.VarintType:
			if m.Sequence, data, err = consumeVarint(data); err != nil {
				return err
			}
		case num == 5 && typ == protowire.BytesType:
			if m.EventUUID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 6 && typ == protowire.VarintType:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.EmittedUTCMS = int64(v)
		case num >= 10 && num <= 14 && typ == protowire.BytesType:
			var raw []byte
			if raw, data, err = consumeBytes(data); err != nil {
				return err
			}
			if err = m.unmarshalPayload(num, raw); err != nil {
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

func (m *EvidenceFromAir) unmarshalPayload(num protowire.Number, raw []byte) error {
	// Last variant wins, like proto oneof semantics.
	m.Hello, m.BlockStart, m.SegmentStart, m.SegmentEnd, m.BlockFence = nil, nil, nil, nil, nil
	switch num {
	case 10:
		m.Hello = new(Hello)
		return m.Hello.unmarshal(raw)
	case 11:
		m.BlockStart = new(BlockStart)
		return m.BlockStart.unmarshal(raw)
	case 12:
		m.SegmentStart = new(SegmentStart)
		return m.SegmentStart.unmarshal(raw)
	case 13:
		m.SegmentEnd = new(SegmentEnd)
		return m.SegmentEnd.unmarshal(raw)
	case 14:
		m.BlockFence = new(BlockFence)
		return m.BlockFence.unmarshal(raw)
	}
	return fmt.Errorf("unhandled payload field %d", num)
}

func (m *Hello) appendTo(b []byte) []byte {
	b = appendVarintField(b, 1, m.FirstSequenceAvailable)
	b = appendVarintField(b, 2, m.LastSequenceEmitted)
	return b
}

func (m *Hello) unmarshal(data []byte) error {
	*m = Hello{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			if m.FirstSequenceAvailable, data, err = consumeVarint(data); err != nil {
				return err
			}
		case num == 2 && typ == protowire.VarintType:
			if m.LastSequenceEmitted, data, err = consumeVarint(data); err != nil {
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

func (m *BlockStart) appendTo(b []byte) []byte {
	b = appendStringField(b, 1, m.BlockID)
	b = appendInt64Field(b, 2, m.ScheduledStartUTCMS)
	b = appendInt64Field(b, 3, m.ActualStartUTCMS)
	return b
}

func (m *BlockStart) unmarshal(data []byte) error {
	*m = BlockStart{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			if m.BlockID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.ScheduledStartUTCMS = int64(v)
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.ActualStartUTCMS = int64(v)
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *SegmentStart) appendTo(b []byte) []byte {
	b = appendStringField(b, 1, m.BlockID)
	b = appendVarintField(b, 2, uint64(m.SegmentIndex))
	b = appendInt64Field(b, 3, m.ActualStartUTCMS)
	return b
}

func (m *SegmentStart) unmarshal(data []byte) error {
	*m = SegmentStart{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			if m.BlockID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.SegmentIndex = uint32(v)
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.ActualStartUTCMS = int64(v)
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *SegmentEnd) appendTo(b []byte) []byte {
	b = appendStringField(b, 1, m.BlockID)
	b = appendVarintField(b, 2, uint64(m.SegmentIndex))
	b = appendInt64Field(b, 3, m.ActualEndUTCMS)
	b = appendStringField(b, 4, m.Status)
	b = appendStringField(b, 5, m.Note)
	return b
}

func (m *SegmentEnd) unmarshal(data []byte) error {
	*m = SegmentEnd{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			if m.BlockID, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.SegmentIndex = uint32(v)
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			m.ActualEndUTCMS = int64(v)
		case num == 4 && typ == protowire.BytesType:
			if m.Status, data, err = consumeString(data); err != nil {
				return err
			}
		case num == 5 && typ == protowire.BytesType:
			if m.Note, data, err = consumeString(data); err != nil {
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

func (m *BlockFence) appendTo(b []byte) []byte {
	b = appendStringField(b, 1, m.BlockID)
	b = appendInt64Field(b, 2, m.FenceUTCMS)
	b = appendVarintField(b, 3, m.SwapTick)
	b = appendVarintField(b, 4, m.FenceTick)
	b = appendBoolField(b, 5, m.PrimedSuccess)
	b = appendBoolField(b, 6, m.TruncatedByFence)
	b = appendBoolField(b, 7, m.EarlyExhaustion)
	return b
}

func (m *BlockFence) unmarshal(data []byte) error {
	*m = BlockFence{}
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
			if m.BlockID, data, err = consumeString(data); err != nil {
				return err
			}
		case num >= 2 && num <= 7 && typ == protowire.VarintType:
			if v, data, err = consumeVarint(data); err != nil {
				return err
			}
			switch num {
			case 2:
				m.FenceUTCMS = int64(v)
			case 3:
				m.SwapTick = v
			case 4:
				m.FenceTick = v
			case 5:
				m.PrimedSuccess = v != 0
			case 6:
				m.TruncatedByFence = v != 0
			case 7:
				m.EarlyExhaustion = v != 0
			}
		default:
			if data, err = skipField(num, typ, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Ack) MarshalBinary() ([]byte, error) {
	return appendVarintField(nil, 1, m.AckedSequence), nil
}

func (m *Ack) UnmarshalBinary(data []byte) error {
	*m = Ack{}
	var err error
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			if m.AckedSequence, data, err = consumeVarint(data); err != nil {
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
