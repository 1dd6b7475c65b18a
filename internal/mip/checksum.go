package mip

// fletcher16 implements the 8-bit Fletcher checksum used by MIP packets.
// The first returned byte is the running sum, the second the sum of sums,
// and they appear on the wire in that order.
func fletcher16(chunks ...[]byte) (ck1, ck2 byte) {
	for _, data := range chunks {
		for _, b := range data {
			ck1 += b
			ck2 += ck1
		}
	}
	return ck1, ck2
}
