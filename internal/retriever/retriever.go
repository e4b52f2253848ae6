package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrNotSaved is returned in use-saved mode when the artifact was never saved.
var ErrNotSaved = errors.New("retriever: artifact not in saved data")

// StatusError reports a non-200 response from the remote server.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.URL, e.Code, e.Status)
}

// Options configures the Retriever.
type Options struct {
	// UserAgent is sent with every request.
	UserAgent string

	// ConnectTimeout bounds connection establishment.
	// Default: 20s
	ConnectTimeout time.Duration

	// TotalTimeout bounds a whole request including the body.
	// Default: 300s
	TotalTimeout time.Duration

	// MaxConnsPerHost caps concurrent connections to one host.
	// Default: 2
	MaxConnsPerHost int

	// Save copies every fetched artifact into the saved bucket.
	Save bool

	// UseSaved serves artifacts from the saved bucket instead of the network.
	UseSaved bool
}

// DefaultOptions returns options matching the CHC server's politeness limits.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:  20 * time.Second,
		TotalTimeout:    300 * time.Second,
		MaxConnsPerHost: 2,
	}
}

// Retriever fetches artifacts and maintains the saved-artifact bucket.
type Retriever struct {
	client   *http.Client
	saved    *blob.Bucket
	savedDir string
	opts     Options
	logger   *slog.Logger
}

// New creates a Retriever. saved may be nil when neither Save nor UseSaved is
// set. savedDir is the on-disk root of saved when it is a fileblob bucket; it
// is used to point rsync at saved mirrors.
func New(saved *blob.Bucket, savedDir string, opts Options, logger *slog.Logger) (*Retriever, error) {
	def := DefaultOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = def.TotalTimeout
	}
	if opts.MaxConnsPerHost <= 0 {
		opts.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if (opts.Save || opts.UseSaved) && saved == nil {
		return nil, errors.New("retriever: saved bucket required for save or use-saved")
	}
	if opts.Save && opts.UseSaved {
		return nil, errors.New("retriever: save and use-saved are mutually exclusive")
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		MaxIdleConnsPerHost: opts.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: opts.ConnectTimeout,
	}

	return &Retriever{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.TotalTimeout,
		},
		saved:    saved,
		savedDir: savedDir,
		opts:     opts,
		logger:   logger,
	}, nil
}

// UseSaved reports whether artifacts come from the saved bucket.
func (r *Retriever) UseSaved() bool { return r.opts.UseSaved }

// Retrieve makes the artifact at rawURL available at dst.
func (r *Retriever) Retrieve(ctx context.Context, rawURL, dst string) error {
	key := SavedKey(rawURL)
	if r.opts.UseSaved {
		return r.fromSaved(ctx, key, dst)
	}
	if err := r.download(ctx, rawURL, dst); err != nil {
		return err
	}
	if r.opts.Save {
		if err := r.uploadFile(ctx, key, dst); err != nil {
			return fmt.Errorf("save %s: %w", rawURL, err)
		}
	}
	return nil
}

// SyncSource returns the rsync source for a remote directory: the remote
// itself, or its saved mirror in use-saved mode.
func (r *Retriever) SyncSource(remote string) string {
	if !r.opts.UseSaved {
		return remote
	}
	return filepath.Join(r.savedDir, filepath.FromSlash(SavedKey(remote)))
}

// SaveSynced copies files synced from remote into localDir to the saved
// bucket. It is a no-op unless Save is set.
func (r *Retriever) SaveSynced(ctx context.Context, remote, localDir string, files []string) error {
	if !r.opts.Save {
		return nil
	}
	prefix := SavedKey(remote)
	for _, name := range files {
		if err := r.uploadFile(ctx, path.Join(prefix, name), filepath.Join(localDir, name)); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	return nil
}

func (r *Retriever) download(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if r.opts.UserAgent != "" {
		req.Header.Set("User-Agent", r.opts.UserAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: rawURL, Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	return writeFile(dst, resp.Body)
}

func (r *Retriever) fromSaved(ctx context.Context, key, dst string) error {
	rd, err := r.saved.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return fmt.Errorf("%w: %s", ErrNotSaved, key)
		}
		return fmt.Errorf("open saved %s: %w", key, err)
	}
	defer rd.Close()
	r.logger.Debug("using saved artifact", "key", key)
	return writeFile(dst, rd)
}

func (r *Retriever) uploadFile(ctx context.Context, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.saved.Upload(ctx, key, f, nil)
}

// writeFile streams body into dst via a sibling temp file so a failed
// transfer never leaves a truncated artifact at dst.
func writeFile(dst string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".part-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// SavedKey maps a remote location to its saved-bucket key: {host}/{path} for
// URLs, the path with any "host:" prefix folded in for rsync locations.
func SavedKey(remote string) string {
	if u, err := url.Parse(remote); err == nil && u.Scheme != "" && u.Host != "" {
		return strings.Trim(path.Join(u.Host, u.Path), "/")
	}
	host, p, ok := strings.Cut(remote, ":")
	if ok && !strings.Contains(host, "/") {
		return strings.Trim(path.Join(host, p), "/")
	}
	return strings.Trim(path.Clean(filepath.ToSlash(remote)), "/")
}
