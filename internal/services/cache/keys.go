package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

const (
	maxEncodedKeyLen = 200
	escapeByte       = '_'
	hashSeparator    = '~'
)

// ErrHashedKey is returned by DecodeKey for keys that were too long to be
// stored verbatim and were shortened with a digest
var ErrHashedKey = errors.New("key was stored in hashed form")

func isSafeKeyByte(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.'
}

// EncodeKey maps a logical cache key to a filesystem and row safe name.
// Unsafe bytes (including the escape byte itself) become "_xx" hex, so the
// mapping is injective; names longer than maxEncodedKeyLen keep a readable
// prefix followed by "~" and the SHA-256 of the original key.
func EncodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isSafeKeyByte(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte(escapeByte)
		b.WriteString(hex.EncodeToString([]byte{c}))
	}

	encoded := b.String()
	if len(encoded) <= maxEncodedKeyLen {
		return encoded
	}

	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	return encoded[:maxEncodedKeyLen-len(digest)-1] + string(hashSeparator) + digest
}

// DecodeKey reverses EncodeKey for keys that were not shortened
func DecodeKey(encoded string) (string, error) {
	if strings.IndexByte(encoded, hashSeparator) >= 0 {
		return "", ErrHashedKey
	}

	var b strings.Builder
	b.Grow(len(encoded))
	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		if c != escapeByte {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(encoded) {
			return "", errors.New("truncated escape sequence")
		}
		v, err := strconv.ParseUint(encoded[i+1:i+3], 16, 8)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}
