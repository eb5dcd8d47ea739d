package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eteran/gallery/internal/media"
	"github.com/eteran/gallery/internal/registry"
	"github.com/spf13/cobra"
)

func (a *app) newListCmd() *cobra.Command {
	var (
		kind string
		q    registry.Query
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the assets stored in the local gallery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			local, err := a.requireLocal()
			if err != nil {
				return err
			}

			switch media.Kind(kind) {
			case "", media.KindImage, media.KindAudio:
				q.Kind = media.Kind(kind)
			default:
				return fmt.Errorf("unknown kind %q", kind)
			}

			entries, err := local.List(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("failed to list gallery: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPATH\tSIZE\tADDED\tDURATION")
			for _, e := range entries {
				duration := "-"
				if e.Duration > 0 {
					duration = e.Duration.Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.ID,
					e.DisplayName,
					e.RelativePath,
					humanize.Bytes(uint64(e.Size)),
					humanize.Time(e.DateAdded),
					duration,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only list assets of this kind (image or audio)")
	cmd.Flags().StringVar(&q.NamePrefix, "prefix", "", "only list display names starting with this")
	cmd.Flags().StringVar(&q.PathPrefix, "path", "", "only list assets under this relative path")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of entries (0 for all)")

	return cmd
}
