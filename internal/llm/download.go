package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// resolveURL builds <hub>/<repo>/resolve/main/<file>.
func resolveURL(hub, repo, file string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(hub, "/"))
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	return base.JoinPath(repo, "resolve", "main", file).String(), nil
}

// download fetches the configured artifact into the model dir. The body is written to
// a temporary file that is renamed into place only once complete.
func (p *Provider) download(ctx context.Context) (string, error) {
	if p.cfg.Repo == "" || p.cfg.File == "" {
		return "", errors.New("no model repo or file configured")
	}
	src, err := resolveURL(p.cfg.HubURL, p.cfg.Repo, p.cfg.File)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(p.dir, filepath.Base(p.cfg.File))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute

	operation := func() error {
		return p.fetch(ctx, src, dst)
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}

	p.logger.Info("Model downloaded", "path", dst)
	return dst, nil
}

func (p *Provider) fetch(ctx context.Context, src, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("GET %s: %s", src, resp.Status)
	default:
		return backoff.Permanent(fmt.Errorf("GET %s: %s", src, resp.Status))
	}

	tmp, err := os.CreateTemp(p.dir, filepath.Base(dst)+".*.part")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return backoff.Permanent(err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return backoff.Permanent(err)
	}
	return nil
}
