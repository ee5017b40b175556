package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ShortHash BLAKE2b 摘要的前 n 個十六進制字符，用作穩定的短標識
func ShortHash(s string, n int) string {
	sum := blake2b.Sum256([]byte(s))
	h := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
