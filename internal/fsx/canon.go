package fsx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON returns the RFC 8785 (JCS) canonical form of JSON input.
func CanonicalJSON(input []byte) ([]byte, error) {
	return jcs.Transform(input)
}

// DigestJSON canonicalizes JSON and returns its sha256 hex digest. Two
// documents differing only in whitespace or key order share a digest.
func DigestJSON(input []byte) (string, error) {
	canonical, err := CanonicalJSON(input)
	if err != nil {
		return "", err
	}
	return DigestBytes(canonical), nil
}

// DigestBytes returns the sha256 hex digest of raw bytes.
func DigestBytes(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// WriteJSONAtomic marshals v, canonicalizes it, and atomically writes it
// to path followed by a newline.
func WriteJSONAtomic(path string, v any, mode os.FileMode) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	canonical, err := CanonicalJSON(raw)
	if err != nil {
		return fmt.Errorf("canonicalize %s: %w", path, err)
	}
	return WriteFileAtomic(path, append(canonical, '\n'), mode)
}
