package shamir

// Arithmetic in GF(2^8) with the AES reduction polynomial
// x^8 + x^4 + x^3 + x + 1 (0x11B). Addition and subtraction are XOR;
// multiplication goes through log/exp tables built from generator 0x03.

var (
	logTable [256]byte
	expTable [256]byte
)

func init() {
	var x byte = 1
	for i := 0; i < 255; i++ {
		expTable[i] = x
		logTable[x] = byte(i)
		x = mulSlow(x, 0x03)
	}
	expTable[255] = expTable[0]
}

// mulSlow is carry-less multiplication with reduction, used to build tables.
func mulSlow(a, b byte) byte {
	var p byte
	for b != 0 {
		if b&1 != 0 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1B
		}
		b >>= 1
	}
	return p
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[(int(logTable[a])+int(logTable[b]))%255]
}

// gfInv panics on zero: callers guarantee distinct x-coordinates.
func gfInv(a byte) byte {
	if a == 0 {
		panic("shamir: inverse of zero in GF(2^8)")
	}
	return expTable[255-int(logTable[a])]
}

func gfDiv(a, b byte) byte {
	return gfMul(a, gfInv(b))
}
