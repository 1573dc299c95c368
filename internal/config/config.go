// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package config persists the tool settings as a JSON file in the
// user's configuration directory. The settings carry the images-home
// location and defaults for new VM runs; everything else is derived
// from the filesystem at run time.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	appDirName = "syzqemuctl"
	fileName   = "config.json"

	dirPerm  = 0o755
	filePerm = 0o644

	// Defaults applied by [Config.ApplyDefaults].
	DefaultMemoryMiB = 2048
	DefaultSMP       = 2
	DefaultSSHUser   = "root"
)

// Config is the persisted tool configuration.
type Config struct {
	// ImagesHome is the directory holding all image directories.
	ImagesHome string `json:"images_home"`
	// CreateImageScript builds the template disk image. Empty means
	// images can only be created with an explicit script.
	CreateImageScript string `json:"create_image_script,omitempty"`
	// MemoryMiB is the default guest memory for runs that do not set one.
	MemoryMiB uint64 `json:"memory_mib"`
	// SMP is the default guest CPU count.
	SMP uint64 `json:"smp"`
	// SSHUser is the user remote sessions authenticate as.
	SSHUser string `json:"ssh_user"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.MemoryMiB == 0 {
		c.MemoryMiB = DefaultMemoryMiB
	}

	if c.SMP == 0 {
		c.SMP = DefaultSMP
	}

	if c.SSHUser == "" {
		c.SSHUser = DefaultSSHUser
	}
}

// Path returns the configuration file path. It honors XDG_CONFIG_HOME
// and falls back to ~/.config.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", &Error{Op: "locate", Err: err}
	}

	return filepath.Join(dir, appDirName, fileName), nil
}

// Initialized reports whether a configuration file exists.
func Initialized() (bool, error) {
	path, err := Path()
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, &Error{Op: "stat", Path: path, Err: err}
	}

	return true, nil
}

// Load reads the configuration file. [ErrNotInitialized] is returned if
// none exists yet.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%s: %w", path, ErrNotInitialized)
	}

	if err != nil {
		return Config{}, &Error{Op: "read", Path: path, Err: err}
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, &Error{Op: "decode", Path: path, Err: err}
	}

	if cfg.ImagesHome == "" {
		return Config{}, &Error{
			Op:   "validate",
			Path: path,
			Err:  errors.New("images_home is unset"),
		}
	}

	cfg.ApplyDefaults()

	return cfg, nil
}

// Save writes the configuration file, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return &Error{Op: "create dir", Path: path, Err: err}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return &Error{Op: "encode", Path: path, Err: err}
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, filePerm); err != nil {
		return &Error{Op: "write", Path: path, Err: err}
	}

	return nil
}
