// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const runConfigName = "run.json"

// RunConfig is the effective configuration of the last VM run, persisted
// inside the image directory so a later run can reuse kernel path, port
// and sizing without the caller repeating them.
type RunConfig struct {
	Kernel string `json:"kernel,omitempty"`
	Port   int    `json:"port"`
	Memory uint64 `json:"memory_mib"`
	SMP    uint64 `json:"smp"`
}

// SaveRunConfig persists cfg as the last run configuration of the named
// image.
func (s *Store) SaveRunConfig(name string, cfg RunConfig) error {
	if !s.Exists(name) {
		return fmt.Errorf("image %s: %w", name, ErrNotFound)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}

	path := filepath.Join(s.Dir(name), runConfigName)
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("write run config: %w", err)
	}

	return nil
}

// LastRunConfig returns the persisted configuration of the last run of
// the named image. The second return value is false if the image has
// never been run.
func (s *Store) LastRunConfig(name string) (RunConfig, bool, error) {
	path := filepath.Join(s.Dir(name), runConfigName)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return RunConfig{}, false, nil
	}

	if err != nil {
		return RunConfig{}, false, fmt.Errorf("read run config: %w", err)
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, fmt.Errorf("decode run config: %w", err)
	}

	return cfg, true, nil
}
