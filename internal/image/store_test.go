// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package image_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgrain/syzqemuctl/internal/image"
)

func newStore(t *testing.T) *image.Store {
	t.Helper()

	store := image.NewStore(filepath.Join(t.TempDir(), "images"))
	require.NoError(t, store.Initialize())

	return store
}

// writeScript creates an image creation script stub. A successful stub
// writes the expected disk image and key file into its output directory.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "create-image.sh")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755)
	require.NoError(t, err)

	return path
}

const goodScriptBody = `
touch "$1/` + image.SSHKeyName + `"
echo disk > "$1/` + image.DiskImageName + `"
`

func TestStoreInitialize(t *testing.T) {
	t.Run("creates home", func(t *testing.T) {
		home := filepath.Join(t.TempDir(), "a", "b")
		require.NoError(t, image.NewStore(home).Initialize())

		info, err := os.Stat(home)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("existing file", func(t *testing.T) {
		home := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(home, nil, 0o644))

		err := image.NewStore(home).Initialize()
		require.ErrorIs(t, err, &image.ConfigError{})
		require.ErrorIs(t, err, image.ErrNotDirectory)
	})

	t.Run("read only home", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("write permissions are not enforced for root")
		}

		home := filepath.Join(t.TempDir(), "ro")
		require.NoError(t, os.Mkdir(home, 0o555))

		err := image.NewStore(home).Initialize()
		require.ErrorIs(t, err, image.ErrNotWritable)
	})
}

func TestStoreCreate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		store := newStore(t)
		script := writeScript(t, goodScriptBody)

		err := store.Create(context.Background(), "vm1", script, nil)
		require.NoError(t, err)

		assert.FileExists(t, store.DiskPath("vm1"))
		assert.FileExists(t, store.KeyPath("vm1"))
	})

	t.Run("already exists keeps original", func(t *testing.T) {
		store := newStore(t)
		script := writeScript(t, goodScriptBody)

		require.NoError(t,
			store.Create(context.Background(), "vm1", script, nil))

		original, err := os.ReadFile(store.DiskPath("vm1"))
		require.NoError(t, err)

		err = store.Create(context.Background(), "vm1", script, nil)
		require.ErrorIs(t, err, image.ErrExists)

		afterwards, err := os.ReadFile(store.DiskPath("vm1"))
		require.NoError(t, err)
		assert.Equal(t, original, afterwards)
	})

	t.Run("script failure removes partial dir", func(t *testing.T) {
		store := newStore(t)
		script := writeScript(t, "echo boom >&2\nexit 3\n")

		err := store.Create(context.Background(), "vm1", script, nil)

		var createErr *image.CreateError
		require.ErrorAs(t, err, &createErr)
		assert.Equal(t, 3, createErr.ExitCode)
		assert.Contains(t, createErr.Output, "boom")
		assert.False(t, store.Exists("vm1"))
	})

	t.Run("missing disk image", func(t *testing.T) {
		store := newStore(t)
		script := writeScript(t, "exit 0\n")

		err := store.Create(context.Background(), "vm1", script, nil)
		require.ErrorIs(t, err, image.ErrNoDiskImage)
		assert.False(t, store.Exists("vm1"))
	})

	t.Run("invalid name", func(t *testing.T) {
		store := newStore(t)
		script := writeScript(t, goodScriptBody)

		err := store.Create(context.Background(), "../vm1", script, nil)
		require.ErrorIs(t, err, image.ErrNameInvalid)
	})
}

func TestStoreClone(t *testing.T) {
	store := newStore(t)
	script := writeScript(t, goodScriptBody)

	t.Run("template not ready", func(t *testing.T) {
		err := store.Clone("vm1")
		require.ErrorIs(t, err, image.ErrTemplateNotReady)
	})

	require.NoError(t,
		store.Create(context.Background(), image.TemplateName, script, nil))

	t.Run("success", func(t *testing.T) {
		require.NoError(t, store.Clone("vm1"))

		templateDisk, err := os.ReadFile(store.DiskPath(image.TemplateName))
		require.NoError(t, err)

		cloneDisk, err := os.ReadFile(store.DiskPath("vm1"))
		require.NoError(t, err)
		assert.Equal(t, templateDisk, cloneDisk)

		keyInfo, err := os.Stat(store.KeyPath("vm1"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), keyInfo.Mode().Perm())
	})

	t.Run("already exists", func(t *testing.T) {
		err := store.Clone("vm1")
		require.ErrorIs(t, err, image.ErrExists)
	})

	t.Run("template name reserved", func(t *testing.T) {
		err := store.Clone(image.TemplateName)
		require.ErrorIs(t, err, image.ErrNameReserved)
	})
}

func TestStoreDelete(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		store := newStore(t)
		err := store.Delete("vm1", nil)
		require.ErrorIs(t, err, image.ErrNotFound)
	})

	t.Run("in use", func(t *testing.T) {
		store := newStore(t)
		script := writeScript(t, goodScriptBody)
		require.NoError(t,
			store.Create(context.Background(), "vm1", script, nil))

		err := store.Delete("vm1", func(string) bool { return true })
		require.ErrorIs(t, err, image.ErrInUse)
		assert.True(t, store.Exists("vm1"))
	})

	t.Run("success", func(t *testing.T) {
		store := newStore(t)
		script := writeScript(t, goodScriptBody)
		require.NoError(t,
			store.Create(context.Background(), "vm1", script, nil))

		err := store.Delete("vm1", func(string) bool { return false })
		require.NoError(t, err)
		assert.False(t, store.Exists("vm1"))
	})
}

func TestStoreList(t *testing.T) {
	store := newStore(t)
	script := writeScript(t, goodScriptBody)

	for _, name := range []string{"vm1", "vm2"} {
		require.NoError(t,
			store.Create(context.Background(), name, script, nil))
	}

	// Stray files must not show up as images.
	require.NoError(t,
		os.WriteFile(filepath.Join(store.Home(), "stray"), nil, 0o644))

	collect := func() []string {
		var names []string
		for name := range store.List() {
			names = append(names, name)
		}

		return names
	}

	first := collect()
	assert.ElementsMatch(t, []string{"vm1", "vm2"}, first)

	// The sequence is restartable and reflects changes between runs.
	require.NoError(t,
		store.Create(context.Background(), "vm3", script, nil))
	assert.ElementsMatch(t, []string{"vm1", "vm2", "vm3"}, collect())
}

func TestStoreInfo(t *testing.T) {
	store := newStore(t)
	script := writeScript(t, goodScriptBody)

	_, err := store.Info("vm1")
	require.ErrorIs(t, err, image.ErrNotFound)

	require.NoError(t,
		store.Create(context.Background(), image.TemplateName, script, nil))

	info, err := store.Info(image.TemplateName)
	require.NoError(t, err)
	assert.True(t, info.IsTemplate)
	assert.True(t, info.TemplateReady)
	assert.True(t, info.HasDisk)
	assert.False(t, info.CreatedAt.IsZero())
}

func TestStoreRunConfig(t *testing.T) {
	store := newStore(t)
	script := writeScript(t, goodScriptBody)
	require.NoError(t,
		store.Create(context.Background(), "vm1", script, nil))

	_, ok, err := store.LastRunConfig("vm1")
	require.NoError(t, err)
	assert.False(t, ok)

	saved := image.RunConfig{
		Kernel: "/kernels/linux",
		Port:   20001,
		Memory: 2048,
		SMP:    4,
	}
	require.NoError(t, store.SaveRunConfig("vm1", saved))

	loaded, ok, err := store.LastRunConfig("vm1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, saved, loaded)
}
