// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package airpb carries the wire types spoken between Core and AIR: the
// execution-evidence stream (AIR to Core) and the playout-control surface
// (Core to AIR). The schema of record is the committed .proto files; the
// Go types here are hand-maintained protowire codecs kept in sync with
// them, registered with gRPC through the Codec in this package. No
// generated code is checked in.
package airpb

// SchemaVersion is the evidence envelope schema this package speaks.
// Envelopes carrying any other version are rejected at the stream edge.
const SchemaVersion = 1

// EvidenceFromAir is the envelope for every event AIR emits. Sequence is
// per playout session and monotonically increasing from 1; EventUUID is
// globally unique per logical event and survives replays. Exactly one
// payload pointer is set.
type EvidenceFromAir struct {
	SchemaVersion    uint32
	ChannelID        string
	PlayoutSessionID string
	Sequence         uint64
	EventUUID        string
	EmittedUTCMS     int64

	Hello        *Hello
	BlockStart   *BlockStart
	SegmentStart *SegmentStart
	SegmentEnd   *SegmentEnd
	BlockFence   *BlockFence
}

// PayloadKind names the variant set on the envelope, or "" when none is.
func (m *EvidenceFromAir) PayloadKind() string {
	switch {
	case m.Hello != nil:
		return "hello"
	case m.BlockStart != nil:
		return "block_start"
	case m.SegmentStart != nil:
		return "segment_start"
	case m.SegmentEnd != nil:
		return "segment_end"
	case m.BlockFence != nil:
		return "block_fence"
	}
	return ""
}

// Hello opens or reopens a session stream.
type Hello struct {
	FirstSequenceAvailable uint64
	LastSequenceEmitted    uint64
}

type BlockStart struct {
	BlockID             string
	ScheduledStartUTCMS int64
	ActualStartUTCMS    int64
}

// SegmentStart uses post-JIP segment numbering: index 0 is the first
// segment actually fed, however deep into the block playback joined.
type SegmentStart struct {
	BlockID          string
	SegmentIndex     uint32
	ActualStartUTCMS int64
}

type SegmentEnd struct {
	BlockID        string
	SegmentIndex   uint32
	ActualEndUTCMS int64
	Status         string
	Note           string
}

type BlockFence struct {
	BlockID          string
	FenceUTCMS       int64
	SwapTick         uint64
	FenceTick        uint64
	PrimedSuccess    bool
	TruncatedByFence bool
	EarlyExhaustion  bool
}

// Ack acknowledges one inbound evidence message. For Hello it carries the
// durable high-water mark instead of the message's own sequence.
type Ack struct {
	AckedSequence uint64
}

type GetVersionRequest struct{}

type GetVersionReply struct {
	Version string
}

type StartChannelRequest struct {
	ChannelID         string
	PlanHandle        string
	ProgramFormatJSON string
}

type LoadPreviewRequest struct {
	ChannelID  string
	AssetPath  string
	StartFrame int64
	FrameCount int64
	FPSNum     uint32
	FPSDen     uint32
}

// Transport selects how AIR reaches the attached TS sink.
type Transport int32

const (
	TransportUnspecified      Transport = 0
	TransportUnixDomainSocket Transport = 1
)

type AttachStreamRequest struct {
	ChannelID       string
	Transport       Transport
	Endpoint        string
	ReplaceExisting bool
}

// ChannelRequest addresses one running channel.
type ChannelRequest struct {
	ChannelID string
}

// CommandReply is the shared outcome shape for state-changing commands.
type CommandReply struct {
	OK     bool
	Detail string
}
