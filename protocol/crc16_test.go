package protocol

import "testing"

func TestCRC16Vectors(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{"empty", []byte{}, 0xFFFF},
		{"single zero", []byte{0x00}, 0x40BF},
		{"reference", []byte{0x01, 0x02, 0x03, 0x04}, 0x2BA1},
		{"check string", []byte("123456789"), 0x4B37},
	}

	for _, tc := range testCases {
		if got := CRC16(tc.data); got != tc.expected {
			t.Errorf("%s: CRC16(% X) = 0x%04X, want 0x%04X", tc.name, tc.data, got, tc.expected)
		}
	}
}

func TestCRC16Deterministic(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	if CRC16(data) != CRC16(data) {
		t.Error("CRC16 not stable for identical input")
	}
}

func TestCRC16OrderSensitive(t *testing.T) {
	a := CRC16([]byte{0x01, 0x02})
	b := CRC16([]byte{0x02, 0x01})

	if a == b {
		t.Errorf("CRC16 ignored byte order: both inputs produced 0x%04X", a)
	}
}
