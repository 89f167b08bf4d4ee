// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package hls

// MPEG-TS packet framing. The segmenter needs five facts per packet: the
// PID, the payload-unit-start flag, the random-access flag, the PCR, and
// where the payload begins. Byte offsets follow ISO 13818-1 section 2.4.

const (
	packetSize = 188
	syncByte   = 0x47
)

// tsPacket is a read-only view over one sync-aligned 188-byte packet.
type tsPacket []byte

func (p tsPacket) pid() int {
	return int(p[1]&0x1F)<<8 | int(p[2])
}

func (p tsPacket) payloadUnitStart() bool {
	return p[1]&0x40 != 0
}

func (p tsPacket) hasAdaptationField() bool {
	return p[3]&0x20 != 0
}

func (p tsPacket) hasPayload() bool {
	return p[3]&0x10 != 0
}

// adaptationFlags returns the adaptation-field flags byte. ok is false
// when the packet has no adaptation field or a zero-length one.
func (p tsPacket) adaptationFlags() (byte, bool) {
	if !p.hasAdaptationField() || p[4] == 0 {
		return 0, false
	}
	return p[5], true
}

// randomAccess reports the adaptation field's random_access_indicator.
func (p tsPacket) randomAccess() bool {
	flags, ok := p.adaptationFlags()
	return ok && flags&0x40 != 0
}

// pcr returns the 33-bit 90 kHz PCR base. The 9-bit 27 MHz extension is
// ignored; segment timing does not need sub-tick precision.
func (p tsPacket) pcr() (uint64, bool) {
	flags, ok := p.adaptationFlags()
	if !ok || flags&0x10 == 0 || p[4] < 7 {
		return 0, false
	}
	base := uint64(p[6])<<25 | uint64(p[7])<<17 | uint64(p[8])<<9 |
		uint64(p[9])<<1 | uint64(p[10])>>7
	return base, true
}

// payload returns the bytes after the header and any adaptation field.
func (p tsPacket) payload() ([]byte, bool) {
	if !p.hasPayload() {
		return nil, false
	}
	off := 4
	if p.hasAdaptationField() {
		off += 1 + int(p[4])
	}
	if off >= packetSize {
		return nil, false
	}
	return p[off:], true
}

// psiSection returns the table bytes of a PSI packet, skipping the
// pointer field. Valid only on payload-unit-start packets.
func (p tsPacket) psiSection() ([]byte, bool) {
	pl, ok := p.payload()
	if !ok || len(pl) < 1 {
		return nil, false
	}
	ptr := int(pl[0])
	if 1+ptr >= len(pl) {
		return nil, false
	}
	return pl[1+ptr:], true
}

// patFirstProgramPMT extracts the PMT PID of the first real program from
// a PAT section (program_number 0 entries point at the network PID).
func patFirstProgramPMT(sec []byte) (int, bool) {
	if len(sec) < 12 || sec[0] != 0x00 {
		return 0, false
	}
	secLen := int(sec[1]&0x0F)<<8 | int(sec[2])
	end := 3 + secLen - 4 // strip the trailing CRC-32
	if end > len(sec) {
		return 0, false
	}
	for i := 8; i+4 <= end; i += 4 {
		prog := int(sec[i])<<8 | int(sec[i+1])
		pid := int(sec[i+2]&0x1F)<<8 | int(sec[i+3])
		if prog != 0 {
			return pid, true
		}
	}
	return 0, false
}

// pmtPCRPID extracts the PCR PID from a PMT section.
func pmtPCRPID(sec []byte) (int, bool) {
	if len(sec) < 12 || sec[0] != 0x02 {
		return 0, false
	}
	return int(sec[8]&0x1F)<<8 | int(sec[9]), true
}
