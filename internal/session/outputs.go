package session

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"
)

const keepFile = ".gitkeep"

var slugUnsafe = regexp.MustCompile(`(?i)[^a-z0-9]`)

// Slug turns a session title into a file name fragment: every character
// outside [a-z0-9] becomes "_" and the result is lower-cased.
func Slug(title string) string {
	return strings.ToLower(slugUnsafe.ReplaceAllString(strings.TrimSpace(title), "_"))
}

// VideoName is the output name of the reconstructed (or combined) video.
func VideoName(slug string) string { return "video-" + slug + ".mp4" }

// SlidesName is the output name of the separate slide video.
func SlidesName(slug string) string { return "slide-" + slug + "-slide.mp4" }

// NormalizeEventURL rewrites registration links carrying eventid and key
// query parameters into the player URL /wcc/r/<eventid>/<key>. Other URLs
// are returned unchanged.
func NormalizeEventURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse event url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("parse event url: %q is not an absolute url", raw)
	}
	q := u.Query()
	id := q.Get("eventid")
	if id == "" {
		return u.String(), nil
	}
	out := url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   "/wcc/r/" + id + "/" + q.Get("key"),
	}
	return out.String(), nil
}

// CleanWorkDir creates dir if needed and removes everything in it except a
// .gitkeep placeholder. Working files of the previous session go away here.
func CleanWorkDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read work dir: %w", err)
	}
	for _, e := range entries {
		if e.Name() == keepFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("clean work dir: %w", err)
		}
	}
	return nil
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("move: %w", err)
	}
	defer in.Close()

	pending, err := renameio.NewPendingFile(dst)
	if err != nil {
		return fmt.Errorf("create pending %s: %w", dst, err)
	}
	defer pending.Cleanup()

	if _, err := io.Copy(pending, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	in.Close()
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", src, err)
	}
	return nil
}
