// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package delta archives the upper layer of an overlay so the change
// set a sandboxed command produced can be inspected after the fact.
//
// The upper layer is the complete record of what the command did:
// created and modified files appear as ordinary entries, deleted files
// appear as whiteouts (character devices with device number 0/0), and
// directories whose lower contents were hidden carry the
// trusted.overlay.opaque extended attribute. [Write] preserves all
// three in a tar stream: whiteouts as character-device headers, opacity
// as a PAX xattr record. [Read] walks an archive back and classifies
// each entry as an [Entry].
//
// The archive compression is selected from the output file name by
// [CompressionForPath]: .tar is uncompressed, .tar.zst and .tzst use
// zstd, and .tar.lz4 uses LZ4 frames. Appending .age encrypts the
// archive with filippo.io/age to the recipients passed to [Write].
package delta
