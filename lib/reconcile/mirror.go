// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
)

// Options modifies how Mirror reconciles. The zero value is a full
// mirror: create, update, and delete until the destination matches the
// source.
type Options struct {
	// DryRun computes the report without modifying the destination.
	DryRun bool

	// KeepExtraneous leaves destination entries that do not exist in
	// the source instead of deleting them.
	KeepExtraneous bool
}

// Report counts what a reconciliation changed (or, for a dry run,
// would change). Directories, files, and symlinks each count once.
type Report struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Skipped   int
}

// Changed reports whether the destination was (or would be) modified.
func (r *Report) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

// Mirror makes a destination tree match a source tree.
//
// Mirror stays on the destination root's filesystem. A destination
// entry on another device (a mount nested inside the destination) is
// neither updated nor deleted, and its contents are not walked.
type Mirror struct {
	Options Options

	// Logger receives per-entry debug records and a summary. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

// Synchronize mirrors source into destination and discards the report.
func (m *Mirror) Synchronize(source, destination string) error {
	_, err := m.Reconcile(source, destination)
	return err
}

// Reconcile mirrors source into destination. Both must be existing
// directories. Errors on individual entries do not stop the walk; they
// are collected and returned together with the report of everything
// that did succeed.
func (m *Mirror) Reconcile(source, destination string) (*Report, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var destinationInfo fs.FileInfo
	for _, root := range []string{source, destination} {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("reconcile root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("reconcile root %s is not a directory", root)
		}
		destinationInfo = info
	}
	device, haveDevice := deviceOf(destinationInfo)

	run := &mirrorRun{
		options:     m.Options,
		logger:      logger,
		source:      source,
		destination: destination,
		report:      &Report{},
		privileged:  os.Geteuid() == 0,
		device:      device,
		haveDevice:  haveDevice,
	}

	run.copyPhase()
	if !m.Options.KeepExtraneous {
		run.deletePhase()
	}
	run.finishDirectories()

	logger.Info("reconciled",
		"source", source,
		"destination", destination,
		"dry_run", m.Options.DryRun,
		"created", run.report.Created,
		"updated", run.report.Updated,
		"deleted", run.report.Deleted,
		"unchanged", run.report.Unchanged,
		"skipped", run.report.Skipped,
	)

	return run.report, errors.Join(run.errs...)
}

// mirrorRun holds the state of a single Reconcile call.
type mirrorRun struct {
	options     Options
	logger      *slog.Logger
	source      string
	destination string
	report      *Report
	privileged  bool
	errs        []error

	// device is the st_dev of the destination root.
	device     uint64
	haveDevice bool

	// directories whose metadata is applied after all children have
	// been written.
	directories []directoryTimes
}

type directoryTimes struct {
	path string
	info fs.FileInfo
}

func (r *mirrorRun) fail(err error) {
	r.errs = append(r.errs, err)
}

// deviceOf returns the st_dev of info.
var deviceOf = func(info fs.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(stat.Dev), true
}

// onOtherDevice reports whether info describes a destination entry that
// is not on the destination root's filesystem.
func (r *mirrorRun) onOtherDevice(info fs.FileInfo) bool {
	if !r.haveDevice {
		return false
	}
	device, ok := deviceOf(info)
	return ok && device != r.device
}

// nestedMount reports whether destinationPath exists on another device.
func (r *mirrorRun) nestedMount(destinationPath string) (bool, error) {
	existing, err := os.Lstat(destinationPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return r.onOtherDevice(existing), nil
}

// copyPhase walks the source and brings every entry into the
// destination.
func (r *mirrorRun) copyPhase() {
	err := filepath.WalkDir(r.source, func(sourcePath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			r.fail(fmt.Errorf("reading %s: %w", sourcePath, walkErr))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relative, err := filepath.Rel(r.source, sourcePath)
		if err != nil {
			r.fail(err)
			return nil
		}
		destinationPath := filepath.Join(r.destination, relative)

		info, err := entry.Info()
		if err != nil {
			r.fail(fmt.Errorf("stat %s: %w", sourcePath, err))
			return nil
		}

		if relative != "." {
			nested, err := r.nestedMount(destinationPath)
			if err != nil {
				r.fail(fmt.Errorf("stat %s: %w", relative, err))
				return nil
			}
			if nested {
				r.report.Skipped++
				r.logger.Debug("skipping nested mount", "path", relative)
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		switch {
		case info.IsDir():
			if err := r.syncDirectory(relative, destinationPath, info); err != nil {
				r.fail(err)
				if relative != "." {
					return filepath.SkipDir
				}
			}
		case info.Mode()&fs.ModeSymlink != 0:
			if err := r.syncSymlink(relative, sourcePath, destinationPath); err != nil {
				r.fail(err)
			}
		case info.Mode().IsRegular():
			if err := r.syncFile(relative, sourcePath, destinationPath, info); err != nil {
				r.fail(err)
			}
		default:
			r.report.Skipped++
			r.logger.Warn("skipping special file", "path", relative, "mode", info.Mode().String())
		}
		return nil
	})
	if err != nil {
		r.fail(err)
	}
}

// deletePhase removes destination entries that no longer exist in the
// source.
func (r *mirrorRun) deletePhase() {
	err := filepath.WalkDir(r.destination, func(destinationPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			r.fail(fmt.Errorf("reading %s: %w", destinationPath, walkErr))
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if destinationPath == r.destination {
			return nil
		}

		relative, err := filepath.Rel(r.destination, destinationPath)
		if err != nil {
			r.fail(err)
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				r.fail(fmt.Errorf("stat %s: %w", relative, err))
			}
			return nil
		}
		if r.onOtherDevice(info) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if _, err := os.Lstat(filepath.Join(r.source, relative)); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			r.fail(fmt.Errorf("stat source %s: %w", relative, err))
			return nil
		}

		r.report.Deleted++
		r.logger.Debug("deleting", "path", relative)
		if !r.options.DryRun {
			if err := os.RemoveAll(destinationPath); err != nil {
				r.fail(fmt.Errorf("deleting %s: %w", relative, err))
			}
		}
		if entry.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		r.fail(err)
	}
}

func (r *mirrorRun) syncDirectory(relative, destinationPath string, info fs.FileInfo) error {
	existing, err := os.Lstat(destinationPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.report.Created++
		r.logger.Debug("creating directory", "path", relative)
		if r.options.DryRun {
			return nil
		}
		if err := os.Mkdir(destinationPath, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", relative, err)
		}
	case err != nil:
		return fmt.Errorf("stat %s: %w", relative, err)
	case !existing.IsDir():
		r.report.Updated++
		r.logger.Debug("replacing with directory", "path", relative)
		if r.options.DryRun {
			return nil
		}
		if err := os.Remove(destinationPath); err != nil {
			return fmt.Errorf("removing %s: %w", relative, err)
		}
		if err := os.Mkdir(destinationPath, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", relative, err)
		}
	default:
		if r.sameMetadata(existing, info) {
			r.report.Unchanged++
		} else {
			r.report.Updated++
			r.logger.Debug("updating directory metadata", "path", relative)
		}
		if r.options.DryRun {
			return nil
		}
	}

	// Mode and times are applied after the children are written, so a
	// read-only source directory does not block its own contents.
	r.directories = append(r.directories, directoryTimes{path: destinationPath, info: info})
	return nil
}

func (r *mirrorRun) syncSymlink(relative, sourcePath, destinationPath string) error {
	target, err := os.Readlink(sourcePath)
	if err != nil {
		return fmt.Errorf("reading link %s: %w", relative, err)
	}

	existing, err := os.Lstat(destinationPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.report.Created++
	case err != nil:
		return fmt.Errorf("stat %s: %w", relative, err)
	default:
		if existing.Mode()&fs.ModeSymlink != 0 {
			if current, err := os.Readlink(destinationPath); err == nil && current == target {
				r.report.Unchanged++
				return nil
			}
		}
		r.report.Updated++
		if !r.options.DryRun {
			if err := os.RemoveAll(destinationPath); err != nil {
				return fmt.Errorf("removing %s: %w", relative, err)
			}
		}
	}

	r.logger.Debug("linking", "path", relative, "target", target)
	if r.options.DryRun {
		return nil
	}
	if err := os.Symlink(target, destinationPath); err != nil {
		return fmt.Errorf("creating link %s: %w", relative, err)
	}
	return nil
}

func (r *mirrorRun) syncFile(relative, sourcePath, destinationPath string, info fs.FileInfo) error {
	existing, err := os.Lstat(destinationPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.report.Created++
	case err != nil:
		return fmt.Errorf("stat %s: %w", relative, err)
	case existing.Mode().IsRegular() && existing.Size() == info.Size():
		unchanged := existing.ModTime().Equal(info.ModTime())
		if !unchanged {
			unchanged, err = sameContent(sourcePath, destinationPath)
			if err != nil {
				return fmt.Errorf("comparing %s: %w", relative, err)
			}
		}
		if unchanged {
			if r.sameMetadata(existing, info) {
				r.report.Unchanged++
				return nil
			}
			r.report.Updated++
			r.logger.Debug("updating file metadata", "path", relative)
			if r.options.DryRun {
				return nil
			}
			if err := r.applyMetadata(destinationPath, info); err != nil {
				return fmt.Errorf("file %s: %w", relative, err)
			}
			return setTimes(destinationPath, info)
		}
		r.report.Updated++
	default:
		r.report.Updated++
	}

	r.logger.Debug("copying", "path", relative, "size", info.Size())
	if r.options.DryRun {
		return nil
	}
	if err := r.copyFile(sourcePath, destinationPath, info); err != nil {
		return fmt.Errorf("copying %s: %w", relative, err)
	}
	return nil
}

// copyFile writes the source contents to a temporary file next to the
// destination and renames it into place.
func (r *mirrorRun) copyFile(sourcePath, destinationPath string, info fs.FileInfo) (err error) {
	input, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer input.Close()

	temporary, err := os.CreateTemp(filepath.Dir(destinationPath), ".overrun-*")
	if err != nil {
		return err
	}
	temporaryPath := temporary.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(temporaryPath)
		}
	}()

	if _, err := io.Copy(temporary, input); err != nil {
		temporary.Close()
		return err
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	if err := r.applyMetadata(temporaryPath, info); err != nil {
		return err
	}
	if err := setTimes(temporaryPath, info); err != nil {
		return err
	}

	// A directory in the way is not replaced by rename(2).
	if existing, statErr := os.Lstat(destinationPath); statErr == nil && existing.IsDir() {
		if err := os.RemoveAll(destinationPath); err != nil {
			return err
		}
	}
	return os.Rename(temporaryPath, destinationPath)
}

// applyMetadata copies ownership (when running as root) and mode bits.
// Ownership goes first because chown clears the setuid and setgid bits.
func (r *mirrorRun) applyMetadata(path string, info fs.FileInfo) error {
	if r.privileged {
		if stat, ok := info.Sys().(*syscall.Stat_t); ok {
			if err := os.Lchown(path, int(stat.Uid), int(stat.Gid)); err != nil {
				return err
			}
		}
	}
	return os.Chmod(path, modeBits(info.Mode()))
}

// finishDirectories applies directory metadata after their contents
// have been written, deepest directories first.
func (r *mirrorRun) finishDirectories() {
	for i := len(r.directories) - 1; i >= 0; i-- {
		directory := r.directories[i]
		if err := r.applyMetadata(directory.path, directory.info); err != nil {
			r.fail(fmt.Errorf("directory %s: %w", directory.path, err))
			continue
		}
		if err := setTimes(directory.path, directory.info); err != nil {
			r.fail(fmt.Errorf("directory %s: %w", directory.path, err))
		}
	}
}

func setTimes(path string, info fs.FileInfo) error {
	return os.Chtimes(path, info.ModTime(), info.ModTime())
}

func modeBits(mode fs.FileMode) fs.FileMode {
	return mode & (fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
}

// sameMetadata compares the attributes applyMetadata would change.
func (r *mirrorRun) sameMetadata(existing, wanted fs.FileInfo) bool {
	if modeBits(existing.Mode()) != modeBits(wanted.Mode()) {
		return false
	}
	if !r.privileged {
		return true
	}
	existingStat, ok1 := existing.Sys().(*syscall.Stat_t)
	wantedStat, ok2 := wanted.Sys().(*syscall.Stat_t)
	if ok1 && ok2 {
		return existingStat.Uid == wantedStat.Uid && existingStat.Gid == wantedStat.Gid
	}
	return true
}
