// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package image manages the on-disk layout of VM image directories.
//
// All images live under a single images-home directory, one directory
// per VM. The special directory "image-template" holds the template
// image produced by the external image creation script. Per-VM images
// are clones of the template. The package performs pure filesystem
// operations and keeps no process state.
package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// TemplateName is the reserved image name of the template directory.
	TemplateName = "image-template"

	// DiskImageName is the disk image file the creation script leaves in
	// the output directory.
	DiskImageName = "bullseye.img"

	// SSHKeyName is the private key file the creation script leaves next
	// to the disk image.
	SSHKeyName = "bullseye.id_rsa"

	// PidFileName is the file QEMU writes its PID to inside the image
	// directory.
	PidFileName = "vm.pid"

	// LogFileName is the console log file inside the image directory.
	LogFileName = "vm.log"

	dirPerm  = 0o755
	filePerm = 0o644
	keyPerm  = 0o600
)

// InUseFunc reports whether the named image is used by a live VM
// process. It is supplied by the process supervisor.
type InUseFunc func(name string) bool

// Info describes a single image directory.
type Info struct {
	Name          string
	Path          string
	CreatedAt     time.Time
	IsTemplate    bool
	TemplateReady bool
	HasDisk       bool
}

// Store manages the image directories under a single images-home.
type Store struct {
	home string
}

// NewStore returns a [Store] for the given images-home directory. Call
// [Store.Initialize] before any other operation.
func NewStore(home string) *Store {
	return &Store{home: home}
}

// Home returns the images-home directory path.
func (s *Store) Home() string {
	return s.home
}

// Dir returns the directory path for the named image.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.home, name)
}

// DiskPath returns the disk image file path for the named image.
func (s *Store) DiskPath(name string) string {
	return filepath.Join(s.home, name, DiskImageName)
}

// KeyPath returns the SSH private key file path for the named image.
func (s *Store) KeyPath(name string) string {
	return filepath.Join(s.home, name, SSHKeyName)
}

// PidFilePath returns the QEMU pid file path for the named image.
func (s *Store) PidFilePath(name string) string {
	return filepath.Join(s.home, name, PidFileName)
}

// LogPath returns the console log file path for the named image.
func (s *Store) LogPath(name string) string {
	return filepath.Join(s.home, name, LogFileName)
}

// Initialize ensures the images-home directory exists and is usable.
func (s *Store) Initialize() error {
	info, err := os.Stat(s.home)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(s.home, dirPerm); err != nil {
			return &ConfigError{Path: s.home, Err: err}
		}
	case err != nil:
		return &ConfigError{Path: s.home, Err: err}
	case !info.IsDir():
		return &ConfigError{Path: s.home, Err: ErrNotDirectory}
	}

	// Probe writability. A read-only images-home fails every later
	// operation in less obvious ways, so reject it up front.
	probe, err := os.CreateTemp(s.home, ".writable-*")
	if err != nil {
		return &ConfigError{Path: s.home, Err: ErrNotWritable}
	}

	probe.Close()
	_ = os.Remove(probe.Name())

	return nil
}

// Exists reports whether a directory for the named image exists.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.Dir(name))
	return err == nil && info.IsDir()
}

// TemplateReady reports whether the template image has been fully
// created. The creation script writes the disk image last, so a
// partially built template is never reported ready.
func (s *Store) TemplateReady() bool {
	_, err := os.Stat(s.DiskPath(TemplateName))
	return err == nil
}

// Create builds the named image by invoking the external image creation
// script with the target directory as first argument.
//
// On script failure or if the script did not leave a disk image behind,
// the partially created directory is removed and a [CreateError]
// carrying the captured script output is returned.
func (s *Store) Create(
	ctx context.Context,
	name string,
	script string,
	args []string,
) error {
	if err := validateName(name); err != nil {
		return err
	}

	if s.Exists(name) {
		return fmt.Errorf("image %s: %w", name, ErrExists)
	}

	dir := s.Dir(name)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, script, append([]string{dir}, args...)...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		_ = os.RemoveAll(dir)

		exitCode := -1
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}

		return &CreateError{
			Name:     name,
			Output:   output.String(),
			ExitCode: exitCode,
			Err:      err,
		}
	}

	if _, err := os.Stat(s.DiskPath(name)); err != nil {
		_ = os.RemoveAll(dir)

		return &CreateError{
			Name:   name,
			Output: output.String(),
			Err:    ErrNoDiskImage,
		}
	}

	return nil
}

// Clone creates the named image as a copy of the template image.
func (s *Store) Clone(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	if name == TemplateName {
		return fmt.Errorf("image %s: %w", name, ErrNameReserved)
	}

	if !s.TemplateReady() {
		return ErrTemplateNotReady
	}

	if s.Exists(name) {
		return fmt.Errorf("image %s: %w", name, ErrExists)
	}

	dir := s.Dir(name)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	err := copyFile(s.DiskPath(TemplateName), s.DiskPath(name), filePerm)
	if err == nil {
		err = copyFile(s.KeyPath(TemplateName), s.KeyPath(name), keyPerm)
	}

	if err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("clone image %s: %w", name, err)
	}

	return nil
}

// Delete removes the named image directory. It refuses to delete an
// image that inUse reports as used by a live VM process.
func (s *Store) Delete(name string, inUse InUseFunc) error {
	if !s.Exists(name) {
		return fmt.Errorf("image %s: %w", name, ErrNotFound)
	}

	if inUse != nil && inUse(name) {
		return fmt.Errorf("image %s: %w", name, ErrInUse)
	}

	if err := os.RemoveAll(s.Dir(name)); err != nil {
		return fmt.Errorf("delete image %s: %w", name, err)
	}

	return nil
}

// List returns a lazy sequence of all image names. The sequence can be
// iterated multiple times and re-reads the directory on each iteration.
// Order is whatever the directory listing provides.
func (s *Store) List() iter.Seq[string] {
	return func(yield func(string) bool) {
		entries, err := os.ReadDir(s.home)
		if err != nil {
			return
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			if !yield(entry.Name()) {
				return
			}
		}
	}
}

// Info returns details about the named image.
func (s *Store) Info(name string) (Info, error) {
	stat, err := os.Stat(s.Dir(name))
	if err != nil || !stat.IsDir() {
		return Info{}, fmt.Errorf("image %s: %w", name, ErrNotFound)
	}

	_, diskErr := os.Stat(s.DiskPath(name))

	info := Info{
		Name:       name,
		Path:       s.Dir(name),
		CreatedAt:  stat.ModTime(),
		IsTemplate: name == TemplateName,
		HasDisk:    diskErr == nil,
	}

	if info.IsTemplate {
		info.TemplateReady = info.HasDisk
	}

	return info, nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") ||
		name == "." || name == ".." {
		return fmt.Errorf("image name %q: %w", name, ErrNameInvalid)
	}

	return nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
