package audio

import "math/bits"

// DefaultBufferSize is the capture tap size the analyzers are tuned for
const DefaultBufferSize = 4096

// IsPowerOfTwo reports whether n is a positive power of two
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Log2 returns log2(n) for a power of two n, or -1 otherwise
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}

// NextPowerOfTwo returns the smallest power of two >= n (1 for n <= 1)
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Clamp limits v to [-1, 1]; NaN maps to 0
func Clamp(v float32) float32 {
	switch {
	case v != v:
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
