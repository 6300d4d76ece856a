package framer

import (
	"crypto/rand"
)

// pad appends the BSH self-encryption padding to src: a zero byte, then
// padLen-2 random bytes, then a trailing byte equal to the total pad
// length. padLen is chosen so that len(src)+padLen is a multiple of 16 and
// padLen is never 1 (spec.md §3 invariants: "padding length ∈ [2, 17]").
func pad(src []byte) ([]byte, error) {
	padLen := 16 - (len(src) % 16)
	if padLen == 1 {
		padLen += 16
	}

	p := make([]byte, padLen)
	if _, err := rand.Read(p[1 : padLen-1]); err != nil {
		return nil, err
	}
	p[0] = 0x00
	p[padLen-1] = byte(padLen)

	return append(src, p...), nil
}

// unpad strips the BSH padding from a decrypted plaintext, validating that
// the trailing length byte does not claim more than the buffer holds.
func unpad(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, ErrPadError
	}
	padLen := int(src[len(src)-1])
	if padLen > len(src) || padLen == 0 {
		return nil, ErrPadError
	}
	return src[:len(src)-padLen], nil
}
