// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest of a file's contents.
type Digest [32]byte

// HashFile computes the BLAKE3 digest of the file at path.
func HashFile(path string) (Digest, error) {
	var digest Digest

	file, err := os.Open(path)
	if err != nil {
		return digest, err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return digest, fmt.Errorf("hashing %s: %w", path, err)
	}
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// sameContent reports whether two files have identical contents.
func sameContent(left, right string) (bool, error) {
	leftDigest, err := HashFile(left)
	if err != nil {
		return false, err
	}
	rightDigest, err := HashFile(right)
	if err != nil {
		return false, err
	}
	return bytes.Equal(leftDigest[:], rightDigest[:]), nil
}
