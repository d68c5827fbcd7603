package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// DefaultHashLength is the length of a hash action result when the target
// field does not impose a shorter limit.
const DefaultHashLength = 16

// digest creates the salted digest for a value under one action key.
func digest(salt, action, value string) [32]byte {
	return sha256.Sum256([]byte(salt + "|" + action + "|" + value))
}

// hexDigest returns the uppercase hex form of a digest.
func hexDigest(sum [32]byte) string {
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// digitStream yields decimal digits derived from a digest, extending itself
// by re-hashing when more digits are requested than one digest provides.
type digitStream struct {
	sum    [32]byte
	digits string
}

func newDigitStream(sum [32]byte) *digitStream {
	return &digitStream{sum: sum, digits: new(big.Int).SetBytes(sum[:]).String()}
}

func (d *digitStream) take(n int) string {
	for len(d.digits) < n {
		d.sum = sha256.Sum256(d.sum[:])
		d.digits += new(big.Int).SetBytes(d.sum[:]).String()
	}
	out := d.digits[:n]
	d.digits = d.digits[n:]
	return out
}

// Truncate cuts a derived value to limit characters; a limit of 0 means
// DefaultHashLength.
func Truncate(value string, limit int) string {
	if limit <= 0 || limit > DefaultHashLength {
		limit = DefaultHashLength
	}
	if len(value) > limit {
		return value[:limit]
	}
	return value
}
