package protocol

// CRC16 computes the checksum used by the bus protocol: bit-reversed
// polynomial 0xA001, initial value 0xFFFF, LSB first. The checksum covers
// dest, src, command, length and the payload; framing bytes and the checksum
// itself are excluded.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
