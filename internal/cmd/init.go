// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/qgrain/syzqemuctl/internal/config"
	"github.com/qgrain/syzqemuctl/internal/image"
)

func newInitCommand(app *app) *cobra.Command {
	var (
		imagesHome string
		script     string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the images home and build the template image",
		Long: `Initialize writes the configuration file, creates the
images home directory and, if an image creation script is given, builds
the template image all new VMs are cloned from. Building the template
downloads and bootstraps a full distribution and can take a long time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := filepath.Abs(imagesHome)
			if err != nil {
				return err
			}

			cfg := config.Config{
				ImagesHome:        home,
				CreateImageScript: script,
			}
			cfg.ApplyDefaults()

			store := image.NewStore(home)
			if err := store.Initialize(); err != nil {
				return err
			}

			if err := config.Save(cfg); err != nil {
				return err
			}

			path, err := config.Path()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Initialized images home %s (config: %s)\n", home, path)

			if script == "" {
				return nil
			}

			if store.TemplateReady() {
				fmt.Fprintln(cmd.OutOrStdout(), "Template image exists.")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(),
				"Building template image, this can take a while...")

			err = store.Create(
				cmd.Context(), image.TemplateName, script, nil,
			)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Template image ready.")

			return nil
		},
	}

	cmd.Flags().StringVar(&imagesHome, "images-home", "",
		"directory to store VM images in")
	cmd.Flags().StringVar(&script, "create-image-script", "",
		"script building the template disk image")

	_ = cmd.MarkFlagRequired("images-home")

	return cmd
}
