// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package airpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func roundTrip(t *testing.T, in *EvidenceFromAir) *EvidenceFromAir {
	t.Helper()
	c := Codec{}
	data, err := c.Marshal(in)
	require.NoError(t, err)
	out := new(EvidenceFromAir)
	require.NoError(t, c.Unmarshal(data, out))
	return out
}

func TestEnvelopeRoundTripPerPayload(t *testing.T) {
	base := EvidenceFromAir{
		SchemaVersion:    1,
		ChannelID:        "wxrv",
		PlayoutSessionID: "sess-1",
		Sequence:         42,
		EventUUID:        "6e3f8a2c-0b1d-4f61-9a77-0de6c2a4c111",
		EmittedUTCMS:     1_740_000_000_123,
	}

	cases := []struct {
		name string
		fill func(*EvidenceFromAir)
	}{
		{"hello", func(m *EvidenceFromAir) {
			m.Hello = &Hello{FirstSequenceAvailable: 1, LastSequenceEmitted: 5}
		}},
		{"block_start", func(m *EvidenceFromAir) {
			m.BlockStart = &BlockStart{
				BlockID:             "blk-001",
				ScheduledStartUTCMS: 1_740_000_000_000,
				ActualStartUTCMS:    1_740_000_000_450,
			}
		}},
		{"segment_start", func(m *EvidenceFromAir) {
			m.SegmentStart = &SegmentStart{BlockID: "blk-001", SegmentIndex: 3, ActualStartUTCMS: 7}
		}},
		{"segment_end", func(m *EvidenceFromAir) {
			m.SegmentEnd = &SegmentEnd{
				BlockID: "blk-001", SegmentIndex: 3,
				ActualEndUTCMS: 9, Status: "AIRED", Note: "clean exit",
			}
		}},
		{"block_fence", func(m *EvidenceFromAir) {
			m.BlockFence = &BlockFence{
				BlockID: "blk-001", FenceUTCMS: 11,
				SwapTick: 2001, FenceTick: 2002,
				PrimedSuccess: true, TruncatedByFence: true, EarlyExhaustion: false,
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.fill(&in)
			out := roundTrip(t, &in)
			assert.Equal(t, &in, out)
			assert.Equal(t, tc.name, out.PayloadKind())
		})
	}
}

func TestEnvelopeKeepsEmptyPayloadPresence(t *testing.T) {
	in := &EvidenceFromAir{Sequence: 1, Hello: &Hello{}}
	out := roundTrip(t, in)
	require.NotNil(t, out.Hello, "all-zero payload must still decode as present")
	assert.Equal(t, "hello", out.PayloadKind())
}

func TestEnvelopeSkipsUnknownFields(t *testing.T) {
	c := Codec{}
	data, err := c.Marshal(&EvidenceFromAir{ChannelID: "wxrv", Sequence: 9})
	require.NoError(t, err)
	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendString(data, "from a newer AIR")

	out := new(EvidenceFromAir)
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, "wxrv", out.ChannelID)
	assert.Equal(t, uint64(9), out.Sequence)
}

func TestEnvelopeRefusesDoublePayload(t *testing.T) {
	m := &EvidenceFromAir{Hello: &Hello{}, BlockFence: &BlockFence{}}
	_, err := Codec{}.Marshal(m)
	require.Error(t, err)
}

func TestAckRoundTrip(t *testing.T) {
	c := Codec{}
	data, err := c.Marshal(&Ack{AckedSequence: 17})
	require.NoError(t, err)
	out := new(Ack)
	require.NoError(t, c.Unmarshal(data, out))
	assert.Equal(t, uint64(17), out.AckedSequence)
}

func TestControlMessagesRoundTrip(t *testing.T) {
	c := Codec{}

	attach := &AttachStreamRequest{
		ChannelID:       "wxrv",
		Transport:       TransportUnixDomainSocket,
		Endpoint:        "/run/retrovue/wxrv.ts.sock",
		ReplaceExisting: true,
	}
	data, err := c.Marshal(attach)
	require.NoError(t, err)
	gotAttach := new(AttachStreamRequest)
	require.NoError(t, c.Unmarshal(data, gotAttach))
	assert.Equal(t, attach, gotAttach)

	preview := &LoadPreviewRequest{
		ChannelID: "wxrv", AssetPath: "/media/episode.mp4",
		StartFrame: 1500, FrameCount: 300, FPSNum: 30000, FPSDen: 1001,
	}
	data, err = c.Marshal(preview)
	require.NoError(t, err)
	gotPreview := new(LoadPreviewRequest)
	require.NoError(t, c.Unmarshal(data, gotPreview))
	assert.Equal(t, preview, gotPreview)

	reply := &CommandReply{OK: true, Detail: "session created"}
	data, err = c.Marshal(reply)
	require.NoError(t, err)
	gotReply := new(CommandReply)
	require.NoError(t, c.Unmarshal(data, gotReply))
	assert.Equal(t, reply, gotReply)
}

func TestCodecRejectsForeignTypes(t *testing.T) {
	_, err := Codec{}.Marshal(struct{}{})
	require.Error(t, err)
	require.Error(t, Codec{}.Unmarshal(nil, &struct{}{}))
}
