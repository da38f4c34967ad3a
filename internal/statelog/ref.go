package statelog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BlobRef returns the content address of data: "sha256-" followed by the
// lowercase hex SHA-256 digest. Equal content always yields an equal ref.
func BlobRef(data []byte) string {
	sum := sha256.Sum256(data)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// IsBlobRef reports whether ref has the shape produced by BlobRef.
func IsBlobRef(ref string) bool {
	hexPart, ok := strings.CutPrefix(ref, DigestPrefix)
	if !ok || len(hexPart) != sha256.Size*2 {
		return false
	}
	for _, c := range hexPart {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
