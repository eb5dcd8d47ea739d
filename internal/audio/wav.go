// Package audio reads just enough of an audio file to describe it in the
// gallery index.
package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/wav"
)

var ErrNotWAV = errors.New("not a RIFF/WAVE stream")

// Format is the PCM layout of a WAV stream.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BitsPerSample uint16
	DataSize      uint32
}

// Duration is the play time of the data chunk. It is derived from the data
// chunk alone, so headers and trailing metadata chunks do not count.
func (f Format) Duration() time.Duration {
	if f.ByteRate == 0 {
		return 0
	}
	return time.Duration(uint64(f.DataSize) * uint64(time.Second) / uint64(f.ByteRate))
}

// ProbeWAV decodes the header of r and forwards it to the start of the
// "data" chunk. The sample data itself is not read.
func ProbeWAV(r io.ReadSeeker) (Format, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return Format{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
		}
		return Format{}, ErrNotWAV
	}

	if err := d.FwdToPCM(); err != nil {
		return Format{}, fmt.Errorf("locate data chunk: %w", err)
	}
	if d.PCMChunk == nil {
		return Format{}, errors.New("no data chunk")
	}

	return Format{
		AudioFormat:   d.WavAudioFormat,
		Channels:      d.NumChans,
		SampleRate:    d.SampleRate,
		ByteRate:      d.AvgBytesPerSec,
		BitsPerSample: d.BitDepth,
		DataSize:      uint32(d.PCMSize),
	}, nil
}
