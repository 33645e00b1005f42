// Package media reconstructs the session's audio/video stream from its live
// manifest and the fragment URLs observed on the network.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"slidecast/internal/manifest"
)

const (
	// ManifestFile is the working copy of the rewritten manifest.
	ManifestFile = "temp.mpd"
	// OutputBase is the name of the remuxed file, without extension.
	OutputBase = "mpdOutput"

	maxManifestBytes = 8 << 20
)

// Remuxer copies the streams described by a manifest into a single file.
type Remuxer interface {
	Remux(ctx context.Context, manifestPath, out string) error
}

// Result is a fetched media file.
type Result struct {
	Path string        `json:"path"`
	Kind manifest.Kind `json:"kind"`
}

// Fetcher downloads, rewrites and remuxes a session manifest.
type Fetcher struct {
	http    *http.Client
	remuxer Remuxer
	workDir string
	log     *slog.Logger
}

// NewFetcher returns a Fetcher writing its working files to workDir.
// httpClient may be nil.
func NewFetcher(httpClient *http.Client, remuxer Remuxer, workDir string, log *slog.Logger) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{http: httpClient, remuxer: remuxer, workDir: workDir, log: log}
}

// Fetch rewrites the manifest at manifestURL against urls and remuxes it.
// The output container follows the manifest's Kind.
func (f *Fetcher) Fetch(ctx context.Context, manifestURL string, urls manifest.FragmentURLs) (Result, error) {
	raw, err := f.download(ctx, manifestURL)
	if err != nil {
		return Result{}, err
	}

	rw, err := manifest.Rewrite(raw, urls)
	if err != nil {
		return Result{}, fmt.Errorf("rewrite manifest: %w", err)
	}

	manifestPath := filepath.Join(f.workDir, ManifestFile)
	if err := rw.WriteFile(manifestPath); err != nil {
		return Result{}, err
	}

	out := filepath.Join(f.workDir, OutputBase+rw.Kind().Ext())
	f.log.Info("downloading media",
		slog.String("manifest", manifestPath),
		slog.String("output", out),
		slog.String("kind", string(rw.Kind())),
		slog.Int("video_segments", rw.VideoSegments()),
	)

	if err := f.remuxer.Remux(ctx, manifestPath, out); err != nil {
		if rmErr := os.Remove(out); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			f.log.Warn("remove partial media output", slog.String("path", out), slog.String("error", rmErr.Error()))
		}
		return Result{}, err
	}
	return Result{Path: out, Kind: rw.Kind()}, nil
}

func (f *Fetcher) download(ctx context.Context, manifestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch manifest: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return raw, nil
}
