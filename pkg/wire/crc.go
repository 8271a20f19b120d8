package wire

// CRC16 computes a CRC-16/ARC checksum (polynomial 0xA001 reflected,
// initial value 0xFFFF, LSB-first) over data. The same checksum stamps
// outgoing packets and validates incoming ones.
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
