package media

import (
	"bytes"
	"io"
	"os"
	"time"
)

// Kind selects the naming preset and collection an asset is stored under.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Preset describes how assets of a given Kind are named and where they live
// in the gallery.
type Preset struct {
	Prefix     string
	Extension  string
	MIMEType   string
	Collection string
}

var (
	ImagePreset = Preset{
		Prefix:     "Image_",
		Extension:  ".jpg",
		MIMEType:   "image/*",
		Collection: "Pictures",
	}

	AudioPreset = Preset{
		Prefix:     "Vc_",
		Extension:  ".wav",
		MIMEType:   "audio/x-wav",
		Collection: "Music",
	}
)

// Source is a readable origin for an asset payload. It is opened once per
// save call.
type Source interface {
	Open() (io.ReadCloser, error)
}

// BytesSource serves an in-memory payload.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// FileSource serves the payload of the file at the given path.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// Asset is a binary payload plus its declared MIME type.
type Asset struct {
	Kind     Kind
	MIMEType string
	Source   Source

	// Duration is the play time of an audio asset, if known.
	Duration time.Duration
}

// Metadata is the descriptive record registered alongside a stored asset.
type Metadata struct {
	DisplayName  string
	MIMEType     string
	DateAdded    time.Time
	RelativePath string
	Kind         Kind
	Duration     time.Duration
}

// Handle is an opaque reference to a pending registry entry.
type Handle struct {
	ID  string
	Key string
}

// IsZero reports whether the registry returned no handle.
func (h Handle) IsZero() bool {
	return h.ID == ""
}

// Location identifies a published asset.
type Location struct {
	ID  string
	URI string

	// Path is the filesystem path of the payload, when the backend has one.
	Path string
}

// Outcome is the terminal result of an asynchronous save. Exactly one of
// Location and Err is meaningful.
type Outcome struct {
	Location Location
	Err      error
}

// Ok reports whether the save succeeded.
func (o Outcome) Ok() bool {
	return o.Err == nil
}
