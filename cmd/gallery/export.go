package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eteran/gallery/internal/registry"
	"github.com/spf13/cobra"
)

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export ID DEST",
		Short: "Copy a stored asset out of the local gallery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := a.requireLocal()
			if err != nil {
				return err
			}

			entry, err := local.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to look up %s: %w", args[0], err)
			}

			dest := args[1]
			if info, err := os.Stat(dest); err == nil && info.IsDir() {
				dest = filepath.Join(dest, entry.DisplayName)
			}

			if err := registry.CopyFile(entry.Path, dest); err != nil {
				return fmt.Errorf("failed to export %s: %w", entry.ID, err)
			}

			slog.Debug("Exported asset", "id", entry.ID, "dest", dest)
			fmt.Fprintln(cmd.OutOrStdout(), dest)
			return nil
		},
	}
}
