package wire

import (
	"encoding/binary"
	"testing"
)

func buildDataPacket(seq uint32) []byte {
	buf := make([]byte, SRTMinLen)
	binary.BigEndian.PutUint32(buf[0:4], seq&srtSeqMask)
	return buf
}

func buildControlPacket(controlType uint32) []byte {
	buf := make([]byte, SRTMinLen)
	binary.BigEndian.PutUint32(buf[0:4], srtControlFlag|(controlType&0x7FFF)<<16)
	return buf
}

func TestDataSeq(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  []byte
		want int64
	}{
		{"too short", make([]byte, SRTMinLen-1), -1},
		{"control packet", buildControlPacket(srtControlACK), -1},
		{"data packet zero", buildDataPacket(0), 0},
		{"data packet max31", buildDataPacket(0x7FFFFFFF), 0x7FFFFFFF},
		{"data packet masks top bit", buildDataPacket(0xFFFFFFFF), 0x7FFFFFFF},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DataSeq(tc.buf); got != tc.want {
				t.Errorf("DataSeq(%x) = %d, want %d", tc.buf, got, tc.want)
			}
		})
	}
}

func TestIsSRTAck(t *testing.T) {
	t.Parallel()

	if !IsSRTAck(buildControlPacket(srtControlACK)) {
		t.Errorf("IsSRTAck false on an ACK control packet")
	}
	if IsSRTAck(buildControlPacket(srtControlHandshake)) {
		t.Errorf("IsSRTAck true on a handshake control packet")
	}
	if IsSRTAck(buildDataPacket(5)) {
		t.Errorf("IsSRTAck true on a data packet")
	}
	if IsSRTAck(make([]byte, SRTMinLen-1)) {
		t.Errorf("IsSRTAck true on a short buffer")
	}
}

func TestInductionProbeRoundTrip(t *testing.T) {
	t.Parallel()

	probe := BuildInductionProbe()
	if len(probe) != InductionPacketLen {
		t.Fatalf("BuildInductionProbe length = %d, want %d", len(probe), InductionPacketLen)
	}
	if !IsInductionResponse(probe) {
		t.Errorf("a freshly built induction probe should classify as an induction response")
	}

	body := probe[SRTMinLen:]
	if v := binary.BigEndian.Uint32(body[0:4]); v != 4 {
		t.Errorf("version = %d, want 4", v)
	}
	if v := binary.BigEndian.Uint32(body[4:8]); v != 2 {
		t.Errorf("ext_field = %d, want 2", v)
	}
	if v := binary.BigEndian.Uint32(body[8:12]); v != 1 {
		t.Errorf("handshake_type = %d, want 1", v)
	}
}

func TestIsInductionResponseRejectsWrongSize(t *testing.T) {
	t.Parallel()

	probe := BuildInductionProbe()
	if IsInductionResponse(probe[:len(probe)-1]) {
		t.Errorf("accepted a truncated induction response")
	}
	if IsInductionResponse(append(probe, 0x00)) {
		t.Errorf("accepted an oversized induction response")
	}
}

func FuzzClassifyType(f *testing.F) {
	f.Add(BuildReg1([16]byte{}))
	f.Add(BuildReg2([32]byte{}))
	f.Add(BuildReg3())
	f.Add(BuildAck(make([][4]byte, RecvAckInt)))
	f.Add([]byte{})
	f.Add([]byte{0x01})

	f.Fuzz(func(t *testing.T, data []byte) {
		ClassifyType(data)
		ParseReg1(data)
		ParseReg2(data)
		ParseAck(data, RecvAckInt)
		DataSeq(data)
		IsSRTAck(data)
		IsInductionResponse(data)
	})
}
