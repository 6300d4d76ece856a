// Package framer implements the BSH application-layer self-encryption used
// by the plain-WebSocket (port 80) transport variant: AES-128-CBC with
// state chained across messages, authenticated by a truncated HMAC-SHA256
// chain. See spec.md §3 ("Framer state") and §4.1.
//
// Grounded on the teacher's securechannel.SecureChannel MAC-chaining
// (certusone-yubihsm-go/securechannel/channel.go: calculateMAC,
// MACChainValue) generalized from SCP03's 8-byte command/response MAC to
// BSH's 16-byte, direction-tagged HMAC chain, and on
// securechannel/util.go's explicit pad/unpad helpers.
package framer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"sync"
)

const (
	tagLength = 16
	minFrame  = 32 // 16-byte minimum ciphertext + 16-byte tag

	dirOutbound byte = 0x45 // 'E'
	dirInbound  byte = 0x43 // 'C'
)

// Framer holds the per-connection encryption state for the HTTP-variant
// transport. New returns a Framer that is already Reset; it must be Reset
// again after every reconnect; its CBC and HMAC chains are connection-scoped secrets, not
// reusable across sessions (spec.md §3: "Framer state ... reset on every
// reconnect").
type Framer struct {
	mu sync.Mutex

	keys keyChain
	iv   []byte

	block cipher.Block

	encrypter cipher.BlockMode
	decrypter cipher.BlockMode

	lastTxHmac []byte
	lastRxHmac []byte

	// txDir/rxDir are the direction bytes this Framer tags its own sends
	// with and expects on its own receives, per spec.md §4.1. The bridge
	// always plays the app role (txDir=dirOutbound, rxDir=dirInbound):
	// the appliance firmware implements the mirror image itself. These
	// are fields, not hardcoded constants, only so tests can construct
	// the appliance's mirror-image encoding without duplicating the AES/
	// HMAC plumbing.
	txDir byte
	rxDir byte
}

// New derives the encryption/MAC keys from psk and constructs a Framer
// playing the local application's role: Encrypt tags with dirOutbound,
// Decrypt expects dirInbound. The returned Framer is already Reset and
// ready to encrypt or decrypt.
func New(psk, iv []byte) (*Framer, error) {
	return newWithRoles(psk, iv, dirOutbound, dirInbound)
}

func newWithRoles(psk, iv []byte, txDir, rxDir byte) (*Framer, error) {
	keys := deriveKeyChain(psk)

	block, err := aes.NewCipher(keys.encKey)
	if err != nil {
		return nil, err
	}

	f := &Framer{
		keys:  keys,
		iv:    iv,
		block: block,
		txDir: txDir,
		rxDir: rxDir,
	}
	f.Reset()
	return f, nil
}

// Reset re-initializes both CBC chains with the shared IV and zeroes the
// HMAC chain registers. Must be called on every fresh connection.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.encrypter = cipher.NewCBCEncrypter(f.block, f.iv)
	f.decrypter = cipher.NewCBCDecrypter(f.block, f.iv)
	f.lastTxHmac = make([]byte, tagLength)
	f.lastRxHmac = make([]byte, tagLength)
}

// Encrypt pads and encrypts a UTF-8 payload, appending the chained HMAC
// tag. The CBC state and HMAC chain both advance, so encrypting the same
// plaintext twice in a row produces two different outputs.
func (f *Framer) Encrypt(plaintext []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	padded, err := pad(plaintext)
	if err != nil {
		return nil, err
	}

	enc := make([]byte, len(padded))
	f.encrypter.CryptBlocks(enc, padded)

	tag := f.macTag(f.txDir, f.lastTxHmac, enc)
	f.lastTxHmac = tag

	return append(enc, tag...), nil
}

// Decrypt verifies the HMAC tag, advances the HMAC chain, decrypts the
// ciphertext and strips its padding.
func (f *Framer) Decrypt(buf []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(buf) < minFrame {
		return nil, ErrShortFrame
	}
	// spec.md §9 Open Question (b): an unaligned length is not rejected
	// up front (the caller decides whether to log it); the MAC is checked
	// first, and the ciphertext is then rejected with ErrShortFrame below
	// because CBC cannot decrypt a partial block.

	enc := buf[:len(buf)-tagLength]
	theirTag := buf[len(buf)-tagLength:]

	ourTag := f.macTag(f.rxDir, f.lastRxHmac, enc)
	if !hmacEqual(theirTag, ourTag) {
		return nil, ErrMacMismatch
	}
	f.lastRxHmac = theirTag

	if len(enc) == 0 || len(enc)%aes.BlockSize != 0 {
		return nil, ErrShortFrame
	}

	plain := make([]byte, len(enc))
	f.decrypter.CryptBlocks(plain, enc)

	return unpad(plain)
}

// IsUnaligned reports whether buf's length is not a multiple of 16, the
// condition HTTPTransport.Recv warns about before calling Decrypt (spec.md
// §9 Open Question (b)); Decrypt itself rejects such a frame.
func IsUnaligned(buf []byte) bool {
	return len(buf)%aes.BlockSize != 0
}

// macTag computes truncate16(HMAC-SHA256(macKey, iv || dir || chain || enc)).
func (f *Framer) macTag(dir byte, chain, enc []byte) []byte {
	msg := make([]byte, 0, len(f.iv)+1+len(chain)+len(enc))
	msg = append(msg, f.iv...)
	msg = append(msg, dir)
	msg = append(msg, chain...)
	msg = append(msg, enc...)

	full := hmacSHA256(f.keys.macKey, msg)
	return full[:tagLength]
}

func hmacEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
