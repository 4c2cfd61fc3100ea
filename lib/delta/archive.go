// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"filippo.io/age"
	"golang.org/x/sys/unix"
)

// OpaqueXattr is the extended attribute overlayfs sets on an upper
// directory that hides the lower directory's contents.
const OpaqueXattr = "trusted.overlay.opaque"

// opaqueRecord is the PAX record key carrying OpaqueXattr.
const opaqueRecord = "SCHILY.xattr." + OpaqueXattr

// EntryKind classifies an archived upper-layer entry.
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindDirectory
	KindSymlink
	// KindWhiteout marks a path the command deleted.
	KindWhiteout
	KindOther
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindWhiteout:
		return "whiteout"
	default:
		return "other"
	}
}

// Entry describes one archived upper-layer entry.
type Entry struct {
	// Name is the slash-separated path relative to the upper layer.
	Name string
	Kind EntryKind
	Size int64
	// LinkTarget is set for symlinks.
	LinkTarget string
	// Opaque is set for directories that hid their lower contents.
	Opaque bool
}

// Summary counts the entries written to an archive.
type Summary struct {
	Files             int
	Directories       int
	Symlinks          int
	Whiteouts         int
	OpaqueDirectories int
	Other             int
	// Bytes is the total size of regular file contents.
	Bytes int64
}

func (s *Summary) add(entry Entry) {
	switch entry.Kind {
	case KindFile:
		s.Files++
		s.Bytes += entry.Size
	case KindDirectory:
		s.Directories++
		if entry.Opaque {
			s.OpaqueDirectories++
		}
	case KindSymlink:
		s.Symlinks++
	case KindWhiteout:
		s.Whiteouts++
	default:
		s.Other++
	}
}

// Write archives the upper layer directory to the file at path, with
// compression chosen by CompressionForPath. If path ends in
// EncryptedSuffix the archive is encrypted to recipients (age public
// keys); see CheckDestination. The file is created with mode 0600 and
// removed again if archiving fails.
func Write(upperDir, path string, recipients ...string) (summary *Summary, err error) {
	if err := CheckDestination(path, recipients); err != nil {
		return nil, err
	}
	compression, err := CompressionForPath(path)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseRecipients(recipients)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating delta archive: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing delta archive: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
			summary = nil
		}
	}()

	if len(parsed) == 0 {
		return WriteTo(file, upperDir, compression)
	}

	encrypted, err := encryptor(file, parsed)
	if err != nil {
		return nil, err
	}
	summary, err = WriteTo(encrypted, upperDir, compression)
	if err != nil {
		return nil, err
	}
	if err := encrypted.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return summary, nil
}

// WriteTo writes a tar stream of the upper layer directory to w.
func WriteTo(w io.Writer, upperDir string, compression Compression) (*Summary, error) {
	compressed, err := compressor(w, compression)
	if err != nil {
		return nil, err
	}
	archive := tar.NewWriter(compressed)
	summary := &Summary{}

	walkErr := filepath.WalkDir(upperDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == upperDir {
			return nil
		}
		relative, err := filepath.Rel(upperDir, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.Mode()&(fs.ModeSocket|fs.ModeNamedPipe) != 0 {
			// tar cannot carry sockets, and neither matters to the
			// change set.
			summary.add(Entry{Kind: KindOther})
			return nil
		}
		archived, err := writeEntry(archive, path, filepath.ToSlash(relative), info)
		if err != nil {
			return fmt.Errorf("archiving %s: %w", relative, err)
		}
		summary.add(archived)
		return nil
	})

	// Close both layers even on failure so the encoder releases its
	// resources; the first error wins.
	closeErr := errors.Join(archive.Close(), compressed.Close())
	if walkErr != nil {
		return nil, walkErr
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return summary, nil
}

func writeEntry(archive *tar.Writer, path, name string, info fs.FileInfo) (Entry, error) {
	var linkTarget string
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return Entry{}, err
		}
		linkTarget = target
	}

	header, err := tar.FileInfoHeader(info, linkTarget)
	if err != nil {
		return Entry{}, err
	}
	header.Name = name

	entry := Entry{Name: name, LinkTarget: linkTarget}
	switch {
	case info.IsDir():
		header.Name += "/"
		entry.Kind = KindDirectory
		if isOpaque(path) {
			entry.Opaque = true
			header.PAXRecords = map[string]string{opaqueRecord: "y"}
			header.Format = tar.FormatPAX
		}
	case info.Mode()&fs.ModeSymlink != 0:
		entry.Kind = KindSymlink
	case info.Mode().IsRegular():
		entry.Kind = KindFile
		entry.Size = info.Size()
	case info.Mode()&fs.ModeCharDevice != 0:
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			header.Devmajor = int64(unix.Major(uint64(stat.Rdev)))
			header.Devminor = int64(unix.Minor(uint64(stat.Rdev)))
		}
		if header.Devmajor == 0 && header.Devminor == 0 {
			entry.Kind = KindWhiteout
		} else {
			entry.Kind = KindOther
		}
	default:
		entry.Kind = KindOther
	}

	if err := archive.WriteHeader(header); err != nil {
		return Entry{}, err
	}
	if entry.Kind == KindFile {
		file, err := os.Open(path)
		if err != nil {
			return Entry{}, err
		}
		defer file.Close()
		if _, err := io.Copy(archive, file); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

// isOpaque reports whether an upper directory carries the overlayfs
// opaque marker. Missing xattr support reads as not opaque.
func isOpaque(path string) bool {
	buffer := make([]byte, 8)
	size, err := unix.Lgetxattr(path, OpaqueXattr, buffer)
	return err == nil && size == 1 && buffer[0] == 'y'
}

// Read calls fn for each entry of the archive at path. Compression is
// chosen by CompressionForPath. An encrypted archive needs one of the
// identities it was encrypted to.
func Read(path string, fn func(Entry) error, identities ...age.Identity) error {
	compression, err := CompressionForPath(path)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file
	if IsEncrypted(path) {
		r, err = decryptor(file, identities)
		if err != nil {
			return err
		}
	}
	return ReadFrom(r, compression, fn)
}

// ReadFrom calls fn for each entry of the tar stream in r.
func ReadFrom(r io.Reader, compression Compression, fn func(Entry) error) error {
	decompressed, err := decompressor(r, compression)
	if err != nil {
		return err
	}
	defer decompressed.Close()

	archive := tar.NewReader(decompressed)
	for {
		header, err := archive.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading delta archive: %w", err)
		}
		if err := fn(classify(header)); err != nil {
			return err
		}
	}
}

func classify(header *tar.Header) Entry {
	entry := Entry{
		Name:       filepath.ToSlash(filepath.Clean(header.Name)),
		LinkTarget: header.Linkname,
	}
	switch header.Typeflag {
	case tar.TypeDir:
		entry.Kind = KindDirectory
		entry.Opaque = header.PAXRecords[opaqueRecord] == "y"
	case tar.TypeSymlink:
		entry.Kind = KindSymlink
	case tar.TypeReg:
		entry.Kind = KindFile
		entry.Size = header.Size
	case tar.TypeChar:
		if header.Devmajor == 0 && header.Devminor == 0 {
			entry.Kind = KindWhiteout
		} else {
			entry.Kind = KindOther
		}
	default:
		entry.Kind = KindOther
	}
	return entry
}
