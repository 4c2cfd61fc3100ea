// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// validateOverlayPath checks that a path is safe for use in overlay
// mount options. The kernel splits the option string on commas and
// lowerdir on colons, so a path containing either could inject or
// corrupt options (e.g., "/tmp,upperdir=/etc").
func validateOverlayPath(path, fieldName string) error {
	if strings.ContainsAny(path, ",:") {
		return fmt.Errorf("%s path %q contains ',' or ':' which would corrupt overlay mount options", fieldName, path)
	}
	if strings.ContainsAny(path, "\x00\n\r") {
		return fmt.Errorf("%s path %q contains invalid characters (null or newline)", fieldName, path)
	}
	return nil
}

// canonicalizeTarget resolves a target directory to an absolute path
// with all symlinks evaluated, and checks that it is a directory.
func canonicalizeTarget(path string) (string, error) {
	if path == "" {
		path = "."
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", resolved)
	}
	return resolved, nil
}

// within reports whether path is parent or lies below it. Both must be
// clean absolute paths.
func within(path, parent string) bool {
	if path == parent || parent == "/" {
		return true
	}
	return strings.HasPrefix(path, parent+string(filepath.Separator))
}

// resolveExisting evaluates symlinks in the longest existing prefix of
// path, so paths that do not exist yet can still be compared with a
// canonical target.
func resolveExisting(path string) string {
	path = filepath.Clean(path)
	var missing []string
	for {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...)
		}
		parent := filepath.Dir(path)
		if parent == path {
			return filepath.Join(append([]string{path}, missing...)...)
		}
		missing = append([]string{filepath.Base(path)}, missing...)
		path = parent
	}
}

// ValidationResult holds the result of a validation check.
type ValidationResult struct {
	Name    string
	Passed  bool
	Message string
	Warning bool // True if this is a warning, not an error.
}

// Validator performs pre-flight validation for a sandboxed run.
type Validator struct {
	results []ValidationResult
	errors  int
	kernel  kernel
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		results: make([]ValidationResult, 0),
		kernel:  newHostKernel(),
	}
}

// Results returns all validation results.
func (v *Validator) Results() []ValidationResult {
	return v.results
}

// HasErrors returns true if any validation failed.
func (v *Validator) HasErrors() bool {
	return v.errors > 0
}

func (v *Validator) pass(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  true,
		Message: message,
	})
}

func (v *Validator) warn(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  true,
		Message: message,
		Warning: true,
	})
}

func (v *Validator) fail(name, message string) {
	v.results = append(v.results, ValidationResult{
		Name:    name,
		Passed:  false,
		Message: message,
	})
	v.errors++
}

// ValidateAll runs all validation checks for a run over target with
// its scratch area under scratchDirectory, elevating through relay
// when not root.
func (v *Validator) ValidateAll(target, scratchDirectory, relay string) {
	v.ValidateKernel(DetectCapabilities())
	v.ValidatePrivilege(os.Geteuid(), relay)
	v.ValidateTarget(target)
	v.ValidateScratch(scratchDirectory, target)
}

// ValidateKernel checks for mount namespace and overlay support.
func (v *Validator) ValidateKernel(caps *Capabilities) {
	if caps.MountNamespaces {
		v.pass("mount-namespace", "mount namespaces available")
	} else {
		v.fail("mount-namespace", "mount namespaces not available (/proc/self/ns/mnt missing)")
	}

	if caps.OverlayFilesystem {
		v.pass("overlayfs", "overlay filesystem registered")
	} else {
		v.warn("overlayfs", "overlay not listed in /proc/filesystems (the module may load on first mount)")
	}
}

// ValidatePrivilege checks that the run can obtain root.
func (v *Validator) ValidatePrivilege(euid int, relay string) {
	if euid == 0 {
		v.pass("privilege", "running as root")
		return
	}
	if relay == "" {
		v.fail("privilege", "not root and no elevation relay configured")
		return
	}
	path, err := exec.LookPath(relay)
	if err != nil {
		v.fail("privilege", fmt.Sprintf("not root and elevation relay %q not found: %v", relay, err))
		return
	}
	v.pass("privilege", fmt.Sprintf("will elevate via %s", path))
}

// ValidateTarget checks that the target exists, is a directory, and is
// on a filesystem overlayfs can use as a lower layer.
func (v *Validator) ValidateTarget(target string) {
	resolved, err := canonicalizeTarget(target)
	if err != nil {
		v.fail("target", err.Error())
		return
	}
	if err := checkFilesystem(v.kernel, resolved, "target", unsupportedLowerFilesystems); err != nil {
		v.fail("target", err.Error())
		return
	}
	v.pass("target", fmt.Sprintf("directory: %s", resolved))
}

// ValidateScratch checks that the scratch parent is usable for overlay
// upper and work directories and does not lie inside the target.
func (v *Validator) ValidateScratch(scratchDirectory, target string) {
	if err := validateOverlayPath(scratchDirectory, "scratch"); err != nil {
		v.fail("scratch", err.Error())
		return
	}
	info, err := os.Stat(scratchDirectory)
	if err != nil {
		v.fail("scratch", fmt.Sprintf("cannot access: %v", err))
		return
	}
	if !info.IsDir() {
		v.fail("scratch", fmt.Sprintf("not a directory: %s", scratchDirectory))
		return
	}
	if resolvedTarget, err := canonicalizeTarget(target); err == nil {
		if within(resolveExisting(scratchDirectory), resolvedTarget) {
			v.fail("scratch", fmt.Sprintf("%s is inside the target %s", scratchDirectory, resolvedTarget))
			return
		}
	}
	if err := checkFilesystem(v.kernel, scratchDirectory, "scratch", unsupportedUpperFilesystems); err != nil {
		v.fail("scratch", err.Error())
		return
	}
	v.pass("scratch", fmt.Sprintf("directory: %s", scratchDirectory))
}

// PrintResults writes validation results to a writer.
func (v *Validator) PrintResults(w io.Writer) {
	for _, r := range v.results {
		var prefix string
		if r.Passed {
			if r.Warning {
				prefix = "⚠"
			} else {
				prefix = "✓"
			}
		} else {
			prefix = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", prefix, r.Name, r.Message)
	}

	fmt.Fprintln(w)
	if v.HasErrors() {
		fmt.Fprintf(w, "Validation failed with %d error(s)\n", v.errors)
	} else {
		fmt.Fprintln(w, "Ready to run sandbox")
	}
}
