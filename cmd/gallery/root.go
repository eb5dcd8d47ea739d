package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eteran/gallery/internal/core"
	"github.com/eteran/gallery/internal/media"
	"github.com/eteran/gallery/internal/notify"
	"github.com/eteran/gallery/internal/registry"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	out   io.Writer
	cfg   core.Config
	toast *notify.Toast

	configPath string
	dataDir    string
	backend    string
	verbose    bool

	local *registry.SQLiteRegistry
	reg   media.Registry
}

// execute runs the command line in args and releases the gallery afterwards,
// whether or not the command succeeded.
func execute(ctx context.Context, out io.Writer, args []string) error {
	a := &app{out: out}
	defer func() {
		if err := a.close(); err != nil {
			slog.Warn("Failed to close gallery", "err", err)
		}
	}()

	root := a.newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gallery",
		Short: "Persist images and audio into a media gallery",
		Long: "gallery stores pictures and recordings into a local or S3 backed\n" +
			"media gallery, the way a camera or voice recorder app would.",
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}

	root.SetOut(a.out)
	root.SetErr(a.out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "gallery.yaml", "path to the configuration file")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "directory of the local gallery")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "registry backend (local or s3)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "show failure causes and debug logs")

	root.AddCommand(
		a.newSaveImageCmd(),
		a.newSaveAudioCmd(),
		a.newListCmd(),
		a.newExportCmd(),
	)

	return root
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	var opts []core.ConfigOption
	if a.dataDir != "" {
		opts = append(opts, core.WithDataDir(a.dataDir))
	}
	if a.backend != "" {
		opts = append(opts, core.WithBackend(a.backend))
	}
	if a.verbose {
		opts = append(opts, core.WithLogLevel("debug"))
	}

	cfg, err := core.Load(a.configPath, opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}

	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	a.toast = notify.NewToast(a.out, a.verbose)

	return a.openRegistry(cmd)
}

func (a *app) openRegistry(cmd *cobra.Command) error {
	switch strings.ToLower(a.cfg.Backend) {
	case core.BackendS3:
		s3cfg := registry.S3Config(a.cfg.S3)
		client, err := registry.NewMinioClient(s3cfg, nil)
		if err != nil {
			return fmt.Errorf("failed to create s3 client: %w", err)
		}
		a.reg = registry.NewS3Registry(client, s3cfg.Bucket, s3cfg.Prefix)
		slog.Debug("Using S3 gallery", "endpoint", s3cfg.Endpoint, "bucket", s3cfg.Bucket)
	default:
		absDataDir, err := filepath.Abs(a.cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to resolve data directory: %w", err)
		}

		local, err := registry.OpenSQLite(cmd.Context(), absDataDir)
		if err != nil {
			return fmt.Errorf("failed to open gallery: %w", err)
		}
		a.local = local
		a.reg = local
		slog.Debug("Using local gallery", "dir", absDataDir)
	}

	return nil
}

func (a *app) close() error {
	if a.local == nil {
		return nil
	}
	err := a.local.Close()
	a.local = nil
	return err
}

func (a *app) saver() *media.Saver {
	imagePreset := media.ImagePreset
	imagePreset.Prefix = a.cfg.ImagePrefix

	audioPreset := media.AudioPreset
	audioPreset.Prefix = a.cfg.AudioPrefix

	return media.NewSaver(a.reg,
		media.WithNotifier(a.toast),
		media.WithAlbum(a.cfg.Album),
		media.WithJPEGQuality(a.cfg.JPEGQuality),
		media.WithPreset(media.KindImage, imagePreset),
		media.WithPreset(media.KindAudio, audioPreset),
	)
}

// requireLocal fails for commands that read the catalog back, which only
// the local gallery supports.
func (a *app) requireLocal() (*registry.SQLiteRegistry, error) {
	if a.local == nil {
		return nil, fmt.Errorf("command requires the local backend, configured backend is %q", a.cfg.Backend)
	}
	return a.local, nil
}
