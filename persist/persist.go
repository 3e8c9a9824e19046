// Package persist implements the file-backed persistence primitives shared
// by the node's subsystems: a startup/shutdown-bracketed logger, a
// checksummed dual-file JSON store, and a crash-safe "write to a temp file,
// then rename" helper.
package persist

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
)

// persistDir is the subdirectory name used by this package's own tests.
const persistDir = "persist"

// RandomSuffix returns a random 32-character hex string, suitable for
// appending to a filename to make it unique.
func RandomSuffix() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("persist: failed to read randomness: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// SafeFile wraps a temp file that is only moved to its final location when
// Commit is called, so a crash or error midway through a write never
// corrupts the destination file.
type SafeFile struct {
	tempFile  *os.File
	finalName string
}

// NewSafeFile creates a new SafeFile whose contents will be committed to
// finalName. finalName may be a relative or absolute path; the temp file is
// always created alongside it so the final rename stays on the same volume.
func NewSafeFile(finalName string) (*SafeFile, error) {
	abs, err := filepath.Abs(finalName)
	if err != nil {
		return nil, err
	}
	tempName := abs + "_" + RandomSuffix() + tempSuffix
	f, err := os.OpenFile(tempName, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	return &SafeFile{tempFile: f, finalName: abs}, nil
}

// Name returns the path of the underlying temp file, not the final path the
// file will occupy after Commit.
func (sf *SafeFile) Name() string {
	return sf.tempFile.Name()
}

// Write implements io.Writer by writing to the underlying temp file.
func (sf *SafeFile) Write(p []byte) (int, error) {
	return sf.tempFile.Write(p)
}

// Commit flushes the temp file to disk and renames it to its final path.
func (sf *SafeFile) Commit() error {
	if err := sf.tempFile.Sync(); err != nil {
		return err
	}
	if err := sf.tempFile.Close(); err != nil {
		return err
	}
	return os.Rename(sf.tempFile.Name(), sf.finalName)
}

// Close removes the temp file without committing it. After a successful
// Commit, Close removes nothing and returns the error from closing the
// already-closed temp file.
func (sf *SafeFile) Close() error {
	err := sf.tempFile.Close()
	os.Remove(sf.tempFile.Name())
	return err
}
