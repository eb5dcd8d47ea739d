package media_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/eteran/gallery/internal/imaging"
	"github.com/eteran/gallery/internal/media"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// brokenSource yields the first n bytes of data, then fails.
type brokenSource struct {
	data []byte
	n    int
}

func (b brokenSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(bytes.NewReader(b.data[:b.n]), iotest.ErrReader(errBoom))), nil
}

func newTestSaver(t *testing.T, reg media.Registry, opts ...media.SaverOption) (*media.Saver, *recordingNotifier) {
	t.Helper()

	notifier := &recordingNotifier{}
	opts = append([]media.SaverOption{media.WithNotifier(notifier)}, opts...)
	return media.NewSaver(reg, opts...), notifier
}

func TestSaveStoresBytesAndMetadata(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	fixed := time.UnixMilli(1700000000999)
	saver, notifier := newTestSaver(t, reg, media.WithNamer(media.NewNamer(func() time.Time { return fixed })))

	payload := []byte("RIFF....WAVEfmt not really audio")
	loc, err := saver.Save(context.Background(), media.Asset{
		Kind:   media.KindAudio,
		Source: media.BytesSource(payload),
	})
	require.NoError(t, err)
	require.NotEmpty(t, loc.ID)
	require.Equal(t, "mem://Music/Vc_1700000000999.wav", loc.URI)

	got, meta, ok := reg.payload(loc.ID)
	require.True(t, ok, "entry should be published")
	require.Equal(t, payload, got)
	require.Equal(t, "Vc_1700000000999.wav", meta.DisplayName)
	require.Equal(t, "audio/x-wav", meta.MIMEType, "empty MIME falls back to preset")
	require.Equal(t, "Music", meta.RelativePath)
	require.Equal(t, int64(1700000000), meta.DateAdded.Unix())
	require.Empty(t, notifier.all())
}

func TestSaveImageUsesAlbumAndDeclaredMIME(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	saver, _ := newTestSaver(t, reg, media.WithAlbum("PhotoRecovery"))

	loc, err := saver.Save(context.Background(), media.Asset{
		Kind:     media.KindImage,
		MIMEType: "image/png",
		Source:   media.BytesSource{1, 2, 3},
	})
	require.NoError(t, err)

	_, meta, ok := reg.payload(loc.ID)
	require.True(t, ok)
	require.Equal(t, "Pictures/PhotoRecovery", meta.RelativePath)
	require.Equal(t, "image/png", meta.MIMEType)
	require.Regexp(t, `^Image_\d+\.jpg$`, meta.DisplayName)
}

func TestSaveRedBitmapDecodesBack(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	saver, _ := newTestSaver(t, reg)

	red := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			red.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	loc, err := saver.SaveImage(context.Background(), red, "image/*")
	require.NoError(t, err)

	data, meta, ok := reg.payload(loc.ID)
	require.True(t, ok)
	require.Equal(t, "image/*", meta.MIMEType)

	img, err := imaging.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 100, img.Bounds().Dx())
	require.Equal(t, 100, img.Bounds().Dy())

	for _, pt := range []image.Point{{0, 0}, {50, 50}, {99, 99}} {
		r, g, b, _ := img.At(pt.X, pt.Y).RGBA()
		require.Greaterf(t, r, uint32(0xe000), "red channel at %v", pt)
		require.Lessf(t, g, uint32(0x2000), "green channel at %v", pt)
		require.Lessf(t, b, uint32(0x2000), "blue channel at %v", pt)
	}
}

func TestSaveRefusedHandle(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	reg.refuse = true
	saver, notifier := newTestSaver(t, reg)

	_, err := saver.Save(context.Background(), media.Asset{Kind: media.KindImage, Source: media.BytesSource("x")})
	require.Error(t, err)
	require.ErrorIs(t, err, media.ErrNoHandle)
	require.True(t, media.FailedAt(err, media.StageAllocate))

	published, pending := reg.counts()
	require.Zero(t, published)
	require.Zero(t, pending)

	notices := notifier.all()
	require.Len(t, notices, 1)
	require.Equal(t, "Failed to save image", notices[0].Message)
}

func TestSaveAllocationError(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	reg.allocErr = errBoom
	saver, _ := newTestSaver(t, reg)

	_, err := saver.Save(context.Background(), media.Asset{Kind: media.KindAudio, Source: media.BytesSource("x")})
	require.ErrorIs(t, err, errBoom)

	var saveErr *media.SaveError
	require.ErrorAs(t, err, &saveErr)
	require.Equal(t, media.StageAllocate, saveErr.Stage)
	require.Equal(t, media.KindAudio, saveErr.Kind)
}

func TestSaveOpenErrorDiscardsEntry(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	reg.openErr = errBoom
	saver, _ := newTestSaver(t, reg)

	_, err := saver.Save(context.Background(), media.Asset{Kind: media.KindAudio, Source: media.BytesSource("x")})
	require.True(t, media.FailedAt(err, media.StageOpen))
	require.Equal(t, 1, reg.discards)

	published, pending := reg.counts()
	require.Zero(t, published)
	require.Zero(t, pending)
}

func TestSavePublishErrorDiscardsEntry(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	reg.publishErr = errBoom
	saver, _ := newTestSaver(t, reg)

	_, err := saver.Save(context.Background(), media.Asset{Kind: media.KindImage, Source: media.BytesSource("x")})
	require.True(t, media.FailedAt(err, media.StageFinalize))
	require.Equal(t, 1, reg.discards)
}

func TestSaveCopyFailureReportsOnce(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	saver, notifier := newTestSaver(t, reg)

	outcomes := saver.SaveAsync(context.Background(), media.Asset{
		Kind:   media.KindAudio,
		Source: brokenSource{data: bytes.Repeat([]byte{7}, 4096), n: 1000},
	})

	var got []media.Outcome
	for o := range outcomes {
		got = append(got, o)
	}
	require.Len(t, got, 1, "exactly one outcome")
	require.False(t, got[0].Ok())
	require.True(t, media.FailedAt(got[0].Err, media.StageCopy))
	require.ErrorIs(t, got[0].Err, errBoom)

	require.Len(t, notifier.all(), 1)
	require.Equal(t, "Failed to save audio to gallery", notifier.all()[0].Message)

	published, pending := reg.counts()
	require.Zero(t, published)
	require.Zero(t, pending, "partial entry must be discarded")
}

func TestSaveAudioMissingFile(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	saver, notifier := newTestSaver(t, reg)

	_, err := saver.SaveAudioFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), "")
	require.True(t, media.FailedAt(err, media.StageSource))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Zero(t, reg.allocations, "registry must not be touched")
	require.Len(t, notifier.all(), 1)
}

func TestSaveAudioFileProbesDuration(t *testing.T) {
	t.Parallel()

	// One second of 8kHz mono 8-bit PCM.
	var wav bytes.Buffer
	wav.WriteString("RIFF")
	require.NoError(t, binary.Write(&wav, binary.LittleEndian, uint32(36+8000)))
	wav.WriteString("WAVEfmt ")
	for _, v := range []any{uint32(16), uint16(1), uint16(1), uint32(8000), uint32(8000), uint16(1), uint16(8)} {
		require.NoError(t, binary.Write(&wav, binary.LittleEndian, v))
	}
	wav.WriteString("data")
	require.NoError(t, binary.Write(&wav, binary.LittleEndian, uint32(8000)))
	wav.Write(make([]byte, 8000))

	path := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(path, wav.Bytes(), 0o644))

	reg := newMemRegistry()
	saver, _ := newTestSaver(t, reg)

	loc, err := saver.SaveAudioFile(context.Background(), path, "")
	require.NoError(t, err)

	data, meta, ok := reg.payload(loc.ID)
	require.True(t, ok)
	require.Equal(t, wav.Bytes(), data)
	require.Equal(t, time.Second, meta.Duration)
}

func TestSaveTwiceCreatesDistinctEntries(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	saver, _ := newTestSaver(t, reg)

	asset := media.Asset{Kind: media.KindImage, Source: media.BytesSource("same bytes")}

	first, err := saver.Save(context.Background(), asset)
	require.NoError(t, err)
	second, err := saver.Save(context.Background(), asset)
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.NotEqual(t, first.URI, second.URI)

	published, _ := reg.counts()
	require.Equal(t, 2, published)
}

func TestSaveAsyncIgnoresLaterCancellation(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	saver, _ := newTestSaver(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	outcomes := saver.SaveAsync(ctx, media.Asset{Kind: media.KindImage, Source: media.BytesSource("x")})
	cancel()

	outcome, ok := <-outcomes
	require.True(t, ok)
	require.True(t, outcome.Ok(), "save should run to completion: %v", outcome.Err)

	_, ok = <-outcomes
	require.False(t, ok, "channel must be closed after the outcome")
}

func TestSaveRejectsMissingSourceAndUnknownKind(t *testing.T) {
	t.Parallel()

	reg := newMemRegistry()
	saver, _ := newTestSaver(t, reg)

	_, err := saver.Save(context.Background(), media.Asset{Kind: media.KindImage})
	require.True(t, media.FailedAt(err, media.StageSource))

	_, err = saver.Save(context.Background(), media.Asset{Kind: "video", Source: media.BytesSource("x")})
	require.True(t, media.FailedAt(err, media.StageSource))
	require.Zero(t, reg.allocations)
}

func TestSaveImageEncodeFailureIsReported(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	reg := newMemRegistry()
	notifier := &recordingNotifier{}
	saver := media.NewSaver(reg, media.WithNotifier(notifier))

	_, err := saver.SaveImage(context.Background(), nil, "")
	require.True(t, media.FailedAt(err, media.StageSource))

	notices := notifier.all()
	require.Len(t, notices, 1)
	require.Equal(t, "Failed to save image", notices[0].Message)
	require.Contains(t, logs.String(), "Failed to save asset")
	require.Contains(t, logs.String(), "kind=image")

	published, pending := reg.counts()
	require.Zero(t, published)
	require.Zero(t, pending)
}
