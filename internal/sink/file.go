package sink

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"go.klb.dev/clip2web/internal/capture"
)

// Encoding is the container format snapshots are written in.
type Encoding string

const (
	EncodingPNG  Encoding = "png"
	EncodingJPEG Encoding = "jpeg"
	EncodingBMP  Encoding = "bmp"
	EncodingTIFF Encoding = "tiff"
)

// ParseEncoding converts a config value to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return EncodingPNG, nil
	case "jpeg", "jpg":
		return EncodingJPEG, nil
	case "bmp":
		return EncodingBMP, nil
	case "tiff", "tif":
		return EncodingTIFF, nil
	default:
		return "", fmt.Errorf("unknown image format %q (want png, jpeg, bmp or tiff)", s)
	}
}

// Ext returns the file extension without the dot.
func (e Encoding) Ext() string {
	if e == EncodingJPEG {
		return "jpg"
	}
	return string(e)
}

const (
	DefaultPrefix      = "clip"
	DefaultJPEGQuality = 90

	nameAttempts = 3
)

// Options configures a FileStore.
type Options struct {
	Dir         string
	Encoding    Encoding
	JPEGQuality int
	Prefix      string
}

// FileStore writes snapshots as image files in one directory. Files are
// never removed.
type FileStore struct {
	dir     string
	enc     Encoding
	quality int
	prefix  string
	now     func() time.Time
	newID   func() string
}

// NewFileStore returns a store writing into opts.Dir. The directory is
// created on first use and recreated if it disappears.
func NewFileStore(opts Options) (*FileStore, error) {
	if opts.Dir == "" {
		return nil, errors.New("sink: no directory configured")
	}
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("sink: resolve %s: %w", opts.Dir, err)
	}
	s := &FileStore{
		dir:     dir,
		enc:     opts.Encoding,
		quality: opts.JPEGQuality,
		prefix:  opts.Prefix,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	if s.enc == "" {
		s.enc = EncodingPNG
	}
	if s.quality <= 0 || s.quality > 100 {
		s.quality = DefaultJPEGQuality
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	return s, nil
}

// Dir returns the absolute directory snapshots are written to.
func (s *FileStore) Dir() string { return s.dir }

// Save encodes snap into a new, uniquely named file. The file appears under
// its final name only once fully written; on failure nothing is left behind.
func (s *FileStore) Save(snap *capture.Snapshot) (Reference, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return Reference{}, &PersistError{Op: "create dir", Path: s.dir, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, ".clip2web-*.tmp")
	if err != nil {
		return Reference{}, &PersistError{Op: "create", Path: s.dir, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := s.encode(w, snap.Image()); err != nil {
		return Reference{}, &PersistError{Op: "encode " + string(s.enc), Path: tmpName, Err: err}
	}
	if err := w.Flush(); err != nil {
		return Reference{}, &PersistError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return Reference{}, &PersistError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return Reference{}, &PersistError{Op: "close", Path: tmpName, Err: err}
	}

	path, err := s.finalize(tmpName, snap.CapturedAt())
	if err != nil {
		return Reference{}, err
	}
	committed = true
	return Reference{Path: path, CreatedAt: s.now()}, nil
}

// finalize moves the temp file to a fresh name. Hard links fail when the
// name is taken, which makes the name exclusive; filesystems without links
// fall back to rename.
func (s *FileStore) finalize(tmpName string, at time.Time) (string, error) {
	var lastErr error
	for i := 0; i < nameAttempts; i++ {
		path := filepath.Join(s.dir, s.name(at))
		err := os.Link(tmpName, path)
		if err == nil {
			_ = os.Remove(tmpName)
			return path, nil
		}
		if errors.Is(err, fs.ErrExist) {
			lastErr = err
			continue
		}
		slog.Debug("hard link unavailable, renaming", "err", err)
		if err := os.Rename(tmpName, path); err != nil {
			return "", &PersistError{Op: "rename", Path: path, Err: err}
		}
		return path, nil
	}
	return "", &PersistError{Op: "allocate name", Path: s.dir, Err: lastErr}
}

func (s *FileStore) name(at time.Time) string {
	if at.IsZero() {
		at = s.now()
	}
	return fmt.Sprintf("%s-%s-%s.%s", s.prefix, at.Format("20060102-150405"), s.newID(), s.enc.Ext())
}

func (s *FileStore) encode(w io.Writer, img image.Image) error {
	switch s.enc {
	case EncodingPNG:
		return png.Encode(w, img)
	case EncodingJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: s.quality})
	case EncodingBMP:
		return bmp.Encode(w, img)
	case EncodingTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unknown encoding %q", s.enc)
	}
}
