package filecache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

const keyLen = 16

// Key derives a directory name from the parts identifying a principal, such
// as an access token. Parts are length-prefixed so ("ab", "c") and ("a", "bc")
// differ.
func Key(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil)[:keyLen])
}

// SecretKey is Key for guessable secrets like passwords. It runs argon2id,
// salted by id, so a directory listing does not hand out cheap guesses.
func SecretKey(id, secret string) string {
	salt := sha256.Sum256([]byte("campuskit/" + id))
	return hex.EncodeToString(argon2.IDKey([]byte(secret), salt[:], 1, 16*1024, 1, keyLen))
}
