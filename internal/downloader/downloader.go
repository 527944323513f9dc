package downloader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	DefaultMaxBytes = 20 << 20
	tempPattern     = "xkcd-comics-*"
)

// Source streams a remote image into w.
type Source interface {
	Download(ctx context.Context, imageURL string, w io.Writer, limit int64) (int64, error)
}

type Downloader struct {
	source   Source
	BaseDir  string // parent of the per-run temp dir; os.TempDir() when empty
	MaxBytes int64
}

func NewDownloader(source Source) *Downloader {
	return &Downloader{
		source:   source,
		MaxBytes: DefaultMaxBytes,
	}
}

// Artifact is a downloaded image on disk. The caller owns it and must call
// Release once done with it.
type Artifact struct {
	Path string
	Size int64
	dir  string
}

// Release removes the image and its temp dir. Safe to call more than once.
func (a *Artifact) Release() error {
	if a == nil || a.dir == "" {
		return nil
	}
	dir := a.dir
	a.dir = ""
	return os.RemoveAll(dir)
}

// Fetch downloads imageURL into a fresh temp dir. Nothing is left on disk
// when it fails.
func (d *Downloader) Fetch(ctx context.Context, imageURL string) (art *Artifact, err error) {
	dir, err := os.MkdirTemp(d.BaseDir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	p := filepath.Join(dir, fileName(imageURL))
	out, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create image file: %w", err)
	}

	n, err := d.source.Download(ctx, imageURL, out, d.MaxBytes)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write image file: %w", cerr)
	}
	if err != nil {
		return nil, err
	}

	return &Artifact{Path: p, Size: n, dir: dir}, nil
}

// fileName keeps the remote base name, which the upload server uses to
// detect the image type.
func fileName(imageURL string) string {
	name := ""
	if u, err := url.Parse(imageURL); err == nil {
		name = sanitize(path.Base(u.Path))
	}
	if name == "" || name == "." || name == "/" {
		name = "comic"
	}
	if path.Ext(name) == "" {
		name += ".png"
	}
	return name
}

func sanitize(s string) string {
	invalid := []string{"<", ">", ":", "\"", "/", "\\", "|", "?", "*"}
	for _, char := range invalid {
		s = strings.ReplaceAll(s, char, "")
	}
	return strings.TrimSpace(s)
}
