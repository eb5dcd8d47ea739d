package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/eteran/gallery/internal/imaging"
	"github.com/eteran/gallery/internal/media"
	"github.com/eteran/gallery/internal/notify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type saveFlags struct {
	mimeType  string
	copy      bool
	maxWidth  int
	maxHeight int
}

func (a *app) newSaveImageCmd() *cobra.Command {
	var flags saveFlags

	cmd := &cobra.Command{
		Use:   "save-image FILE...",
		Short: "Save pictures to the gallery as JPEG",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.maxWidth < 0 || flags.maxHeight < 0 {
				return fmt.Errorf("--max-width and --max-height must not be negative")
			}
			return a.saveImages(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.mimeType, "mime", "", "MIME type recorded for the picture (default image/*)")
	cmd.Flags().BoolVar(&flags.copy, "copy", false, "copy the saved location to the clipboard")
	cmd.Flags().IntVar(&flags.maxWidth, "max-width", 0, "down-sample pictures wider than this")
	cmd.Flags().IntVar(&flags.maxHeight, "max-height", 0, "down-sample pictures taller than this")
	cmd.MarkFlagsRequiredTogether("max-width", "max-height")

	return cmd
}

func (a *app) newSaveAudioCmd() *cobra.Command {
	var flags saveFlags

	cmd := &cobra.Command{
		Use:   "save-audio FILE...",
		Short: "Save recordings to the gallery",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.saveAudio(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.mimeType, "mime", "", "MIME type recorded for the recording (default audio/x-wav)")
	cmd.Flags().BoolVar(&flags.copy, "copy", false, "copy the saved location to the clipboard")

	return cmd
}

func loadImage(path string, maxWidth, maxHeight int) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read picture: %w", err)
	}

	if maxWidth > 0 || maxHeight > 0 {
		return imaging.DecodeSampled(data, maxWidth, maxHeight)
	}
	return imaging.Decode(data)
}

// saveImages saves every file concurrently. A failure of one file does not
// stop the others.
func (a *app) saveImages(ctx context.Context, files []string, flags saveFlags) error {
	saver := a.saver()

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)

	for _, file := range files {
		g.Go(func() error {
			img, err := loadImage(file, flags.maxWidth, flags.maxHeight)
			if err != nil {
				slog.Error("Failed to load picture", "file", file, "err", err)
				a.toast.Notify(ctx, media.Notice{Kind: media.KindImage, Message: "Failed to save image", Err: err})
				failed.Add(1)
				return nil
			}

			loc, err := saver.SaveImage(ctx, img, flags.mimeType)
			if err != nil {
				failed.Add(1)
				return nil
			}

			a.saved(loc, flags.copy)
			return nil
		})
	}

	_ = g.Wait()
	return summarize(int(failed.Load()), len(files))
}

// saveAudio starts every save in the background and then collects the
// outcomes in argument order.
func (a *app) saveAudio(ctx context.Context, files []string, flags saveFlags) error {
	saver := a.saver()

	pending := make([]<-chan media.Outcome, 0, len(files))
	for _, file := range files {
		pending = append(pending, saver.SaveAsync(ctx, media.AudioFile(file, flags.mimeType)))
	}

	failed := 0
	for _, ch := range pending {
		outcome := <-ch
		if !outcome.Ok() {
			failed++
			continue
		}
		a.saved(outcome.Location, flags.copy)
	}

	return summarize(failed, len(files))
}

func (a *app) saved(loc media.Location, share bool) {
	a.toast.Saved(loc)
	if !share {
		return
	}
	if err := notify.Share(loc); err != nil {
		slog.Warn("Could not share location", "id", loc.ID, "err", err)
	}
}

func summarize(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d saves failed", failed, total)
}
