package hdlc

import "github.com/sigurn/crc16"

// The 16-bit FCS is CRC-16/X-25: polynomial 0x1021 bit-reflected, initial
// value 0xFFFF, final one's complement. This is the variant RCP firmware
// computes for HDLC-lite framing. The FCS travels least significant octet
// first, appended to the payload before escaping.
var fcsTable = crc16.MakeTable(crc16.CRC16_X_25)

// goodFCS is the completed FCS over an intact frame's payload plus its two
// trailing FCS octets. X-25 leaves the residue 0xF0B8 in the register after a
// valid frame, so the completed value is its complement.
const goodFCS uint16 = 0xF0B8 ^ 0xFFFF

func newFCS() uint16 { return crc16.Init(fcsTable) }

func updateFCS(fcs uint16, b byte) uint16 {
	one := [1]byte{b}
	return crc16.Update(fcs, one[:], fcsTable)
}

func completeFCS(fcs uint16) uint16 {
	return crc16.Complete(fcs, fcsTable)
}

// frameFCS returns the frame check sequence transmitted for payload.
func frameFCS(payload []byte) uint16 {
	return crc16.Checksum(payload, fcsTable)
}
