package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// SumSHA256 returns the SHA-256 checksum of the provided data.
func SumSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// DigestFileMap returns a stable hex digest of a path-to-content map. Paths
// are hashed in sorted order so the digest is independent of map iteration.
func DigestFileMap(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(files[p]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
