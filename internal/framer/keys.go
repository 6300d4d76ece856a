package framer

import (
	"crypto/hmac"
	"crypto/sha256"
)

// keyChain holds the two keys derived from a device's PSK, analogous to the
// teacher's authkey.AuthKey split between an encryption half and a MAC half
// (authkey/authkey.go), but derived via HMAC-SHA256 rather than PBKDF2 since
// the appliance firmware does the former.
type keyChain struct {
	encKey []byte // AES-128 key, HMAC-SHA256(psk, "ENC")[0:16]
	macKey []byte // full HMAC-SHA256(psk, "MAC") output
}

func deriveKeyChain(psk []byte) keyChain {
	return keyChain{
		encKey: hmacSHA256(psk, []byte("ENC"))[:16],
		macKey: hmacSHA256(psk, []byte("MAC")),
	}
}

func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}
