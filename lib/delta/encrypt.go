// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// EncryptedSuffix marks an archive encrypted with age, for example
// "changes.tar.zst.age".
const EncryptedSuffix = ".age"

// IsEncrypted reports whether path names an encrypted archive.
func IsEncrypted(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), EncryptedSuffix)
}

// CheckDestination checks that an archive path and a recipient list
// agree: an encrypted archive needs at least one recipient, and
// recipients are only accepted for an encrypted archive. It also
// checks the extension and that every recipient parses.
func CheckDestination(path string, recipients []string) error {
	if _, err := CompressionForPath(path); err != nil {
		return err
	}
	switch {
	case IsEncrypted(path) && len(recipients) == 0:
		return fmt.Errorf("delta archive %s is encrypted but no recipients are configured", path)
	case !IsEncrypted(path) && len(recipients) > 0:
		return fmt.Errorf("delta recipients are configured but %s does not end in %s", path, EncryptedSuffix)
	}
	_, err := ParseRecipients(recipients)
	return err
}

// ParseRecipients parses age X25519 public keys (age1...).
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// encryptor wraps w with an age encryptor. Closing the returned writer
// finalizes the ciphertext but does not close w.
func encryptor(w io.Writer, recipients []age.Recipient) (io.WriteCloser, error) {
	writer, err := age.Encrypt(w, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	return writer, nil
}

func decryptor(r io.Reader, identities []age.Identity) (io.Reader, error) {
	if len(identities) == 0 {
		return nil, errors.New("archive is encrypted and no identity was given")
	}
	reader, err := age.Decrypt(r, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting delta archive: %w", err)
	}
	return reader, nil
}
