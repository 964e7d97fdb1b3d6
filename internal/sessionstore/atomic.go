package sessionstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ensureDir creates path and all parents, grounded on the teacher's
// filestore.EnsureDir.
func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// readFileOrEmpty reads path, returning (nil, nil) if it doesn't exist,
// grounded on filestore.ReadFileOrEmpty.
func readFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// marshalIndent serializes v as 2-space indented JSON with a trailing
// newline, per §3.1's serialization convention.
func marshalIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// randomHex16 returns 16 random hex characters for the atomic-write temp
// file suffix required by §4.1.
func randomHex16() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// atomicWriteFile writes data to path via a randomly-named temp file in
// the same directory followed by rename, per the §4.1 atomic write
// protocol (temp-file+rename pattern grounded on
// filestore.AtomicWrite, extended with the spec's required random
// 16-hex suffix).
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := ensureDir(dir); err != nil {
		return err
	}
	suffix, err := randomHex16()
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), suffix))
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
