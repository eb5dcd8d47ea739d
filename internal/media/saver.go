package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/eteran/gallery/internal/audio"
	"github.com/eteran/gallery/internal/imaging"
)

const (
	DefaultAlbum       = "Gallery"
	DefaultJPEGQuality = 90
)

// Saver persists assets into a Registry. A Saver holds no per-call state and
// may be shared between goroutines; concurrent saves are independent and
// carry no ordering guarantee.
type Saver struct {
	registry    Registry
	notifier    Notifier
	namer       *Namer
	album       string
	jpegQuality int
	presets     map[Kind]Preset
}

type SaverOption func(*Saver)

func WithNotifier(n Notifier) SaverOption {
	return func(s *Saver) {
		s.notifier = n
	}
}

func WithNamer(n *Namer) SaverOption {
	return func(s *Saver) {
		s.namer = n
	}
}

// WithAlbum sets the directory under the image collection that pictures are
// saved into.
func WithAlbum(album string) SaverOption {
	return func(s *Saver) {
		s.album = album
	}
}

func WithJPEGQuality(quality int) SaverOption {
	return func(s *Saver) {
		s.jpegQuality = quality
	}
}

// WithPreset overrides the naming preset used for kind.
func WithPreset(kind Kind, p Preset) SaverOption {
	return func(s *Saver) {
		s.presets[kind] = p
	}
}

func NewSaver(registry Registry, opts ...SaverOption) *Saver {
	s := &Saver{
		registry:    registry,
		notifier:    nopNotifier{},
		album:       DefaultAlbum,
		jpegQuality: DefaultJPEGQuality,
		presets: map[Kind]Preset{
			KindImage: ImagePreset,
			KindAudio: AudioPreset,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.namer == nil {
		s.namer = NewNamer(nil)
	}
	return s
}

// Save stores one asset and returns where it ended up. It opens the source,
// allocates a registry entry, copies the payload and publishes the entry.
// Any failure discards the entry allocated by this call, emits a notice and
// returns a *SaveError.
func (s *Saver) Save(ctx context.Context, asset Asset) (Location, error) {
	loc, err := s.save(ctx, asset)
	if err != nil {
		s.report(ctx, asset.Kind, err)
		return Location{}, err
	}

	slog.Info("Saved asset", "kind", asset.Kind, "id", loc.ID, "uri", loc.URI)
	return loc, nil
}

func (s *Saver) save(ctx context.Context, asset Asset) (Location, error) {
	fail := func(stage Stage, err error) (Location, error) {
		return Location{}, &SaveError{Stage: stage, Kind: asset.Kind, Err: err}
	}

	preset, ok := s.presets[asset.Kind]
	if !ok {
		return fail(StageSource, fmt.Errorf("unknown asset kind %q", asset.Kind))
	}

	if asset.Source == nil {
		return fail(StageSource, errors.New("asset has no source"))
	}

	src, err := asset.Source.Open()
	if err != nil {
		return fail(StageSource, err)
	}
	defer src.Close()

	meta := s.metadata(asset, preset)

	h, err := s.registry.Allocate(ctx, meta)
	if err != nil {
		return fail(StageAllocate, err)
	}
	if h.IsZero() {
		return fail(StageAllocate, ErrNoHandle)
	}

	dst, err := s.registry.Open(ctx, h)
	if err != nil {
		s.discard(ctx, h)
		return fail(StageOpen, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		s.discard(ctx, h)
		return fail(StageCopy, err)
	}

	if err := dst.Close(); err != nil {
		s.discard(ctx, h)
		return fail(StageCopy, err)
	}

	loc, err := s.registry.Publish(ctx, h)
	if err != nil {
		s.discard(ctx, h)
		return fail(StageFinalize, err)
	}

	return loc, nil
}

// report logs a failed save and shows the user-facing notice for it.
func (s *Saver) report(ctx context.Context, kind Kind, err error) {
	slog.Error("Failed to save asset", "kind", kind, "err", err)
	s.notifier.Notify(ctx, Notice{
		Kind:    kind,
		Message: failureMessage(kind),
		Err:     err,
	})
}

func (s *Saver) discard(ctx context.Context, h Handle) {
	if err := s.registry.Discard(ctx, h); err != nil {
		slog.Warn("Failed to discard pending entry", "id", h.ID, "err", err)
	}
}

func (s *Saver) metadata(asset Asset, p Preset) Metadata {
	name, at := s.namer.Next(p)

	mimeType := strings.TrimSpace(asset.MIMEType)
	if mimeType == "" {
		mimeType = p.MIMEType
	}

	relPath := p.Collection
	if asset.Kind == KindImage && s.album != "" {
		relPath = path.Join(p.Collection, s.album)
	}

	return Metadata{
		DisplayName:  name,
		MIMEType:     mimeType,
		DateAdded:    at.Truncate(time.Second),
		RelativePath: relPath,
		Kind:         asset.Kind,
		Duration:     asset.Duration,
	}
}

// SaveImage compresses img as JPEG and saves it to the picture collection.
func (s *Saver) SaveImage(ctx context.Context, img image.Image, mimeType string) (Location, error) {
	var buf bytes.Buffer
	if err := imaging.EncodeJPEG(&buf, img, s.jpegQuality); err != nil {
		err = &SaveError{Stage: StageSource, Kind: KindImage, Err: err}
		s.report(ctx, KindImage, err)
		return Location{}, err
	}

	return s.Save(ctx, Asset{
		Kind:     KindImage,
		MIMEType: mimeType,
		Source:   BytesSource(buf.Bytes()),
	})
}

// SaveAudioFile saves the audio file at filePath to the music collection.
func (s *Saver) SaveAudioFile(ctx context.Context, filePath string, mimeType string) (Location, error) {
	return s.Save(ctx, AudioFile(filePath, mimeType))
}

// AudioFile describes the audio file at filePath as an Asset. The play time
// is filled in when the file is a readable WAV.
func AudioFile(filePath string, mimeType string) Asset {
	return Asset{
		Kind:     KindAudio,
		MIMEType: mimeType,
		Source:   FileSource(filePath),
		Duration: probeDuration(filePath),
	}
}

// SaveAsync runs Save on a background goroutine. The returned channel yields
// exactly one Outcome and is then closed. Cancelling ctx after the call does
// not interrupt the save.
func (s *Saver) SaveAsync(ctx context.Context, asset Asset) <-chan Outcome {
	out := make(chan Outcome, 1)
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		loc, err := s.Save(ctx, asset)
		out <- Outcome{Location: loc, Err: err}
	}()

	return out
}

func probeDuration(filePath string) time.Duration {
	f, err := os.Open(filePath)
	if err != nil {
		return 0
	}
	defer f.Close()

	format, err := audio.ProbeWAV(f)
	if err != nil {
		return 0
	}
	return format.Duration()
}

func failureMessage(kind Kind) string {
	switch kind {
	case KindImage:
		return "Failed to save image"
	case KindAudio:
		return "Failed to save audio to gallery"
	default:
		return "Failed to save file"
	}
}
