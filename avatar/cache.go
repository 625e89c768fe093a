// Package avatar resolves a display name and source url into a small square
// image. Lookups fall through three tiers, memory, disk, then network, and
// back-fill the faster tiers on the way out, so each url is fetched at most
// once per session.
package avatar

import (
	"bytes"
	"crypto/md5"
	"crypto/tls"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// Size is the edge length in pixels of every image the cache hands out.
const Size = 42

const fetchTimeout = 60 * time.Second

// A Cache resolves avatars across memory, disk and network. Get never
// blocks on the network and never fails: the worst case is a deterministic
// placeholder.
//
// Neither tier is bounded; within a session the cache only grows. The disk
// directory persists across sessions and is safe to delete wholesale.
type Cache struct {
	logger  *slog.Logger
	baseURL string
	dir     string
	httpCli *http.Client

	// Downloads complete on their own goroutines, so unlike the rest of
	// the core this component synchronizes internally.
	mu        sync.Mutex
	mem       map[string]image.Image
	pending   map[string]struct{}
	failed    map[string]struct{}
	observers map[string][]func(image.Image)
}

// New returns a cache storing files under dir, creating it if needed.
// Relative avatar urls are resolved against baseURL. The fetch client
// accepts untrusted certificates, matching the transport this client talks
// to self-hosted servers over.
func New(logger *slog.Logger, baseURL, dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		logger:  logger,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dir:     dir,
		httpCli: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		mem:       make(map[string]image.Image),
		pending:   make(map[string]struct{}),
		failed:    make(map[string]struct{}),
		observers: make(map[string][]func(image.Image)),
	}, nil
}

// Get resolves an avatar, returning the best result available right now.
// Default or empty urls synthesize a placeholder. A memory or disk hit
// returns the cached image. Otherwise a background fetch starts, at most
// one per url, and the placeholder stands in until a subscriber is
// notified of the real image.
func (c *Cache) Get(name, rawURL string) image.Image {
	if isDefaultURL(rawURL) {
		return Placeholder(name)
	}
	url := c.Resolve(rawURL)

	c.mu.Lock()
	if img, ok := c.mem[url]; ok {
		c.mu.Unlock()
		return img
	}
	_, failed := c.failed[url]
	c.mu.Unlock()

	if img, ok := c.loadDisk(url); ok {
		c.mu.Lock()
		c.mem[url] = img
		c.mu.Unlock()
		return img
	}

	if failed {
		return Placeholder(name)
	}

	c.mu.Lock()
	if _, inflight := c.pending[url]; !inflight {
		c.pending[url] = struct{}{}
		go c.fetch(url)
	}
	c.mu.Unlock()

	return Placeholder(name)
}

// Subscribe registers a callback invoked once if and when the url's image
// arrives from the network. Callbacks run on the downloader goroutine.
func (c *Cache) Subscribe(rawURL string, fn func(image.Image)) {
	if isDefaultURL(rawURL) {
		return
	}
	url := c.Resolve(rawURL)
	c.mu.Lock()
	c.observers[url] = append(c.observers[url], fn)
	c.mu.Unlock()
}

// Resolve turns a server-relative avatar path into an absolute url.
func (c *Cache) Resolve(rawURL string) string {
	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return rawURL
	case strings.HasPrefix(rawURL, "/"):
		return c.baseURL + rawURL
	default:
		return c.baseURL + "/" + rawURL
	}
}

func isDefaultURL(rawURL string) bool {
	return rawURL == "" || rawURL == "default.png" || strings.HasSuffix(rawURL, "/default.png")
}

// path maps a url to its cache file. The name is a non-reversible hash so
// arbitrary urls cannot escape the directory.
func (c *Cache) path(url string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%x.png", md5.Sum([]byte(url))))
}

func (c *Cache) loadDisk(url string) (image.Image, bool) {
	f, err := os.Open(c.path(url))
	if err != nil {
		return nil, false
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		c.logger.Warn("Discarding unreadable cached avatar", "path", c.path(url), "error", err.Error())
		return nil, false
	}
	return img, true
}

// fetch downloads, normalizes and stores one avatar, then notifies the
// url's subscribers. Any failure marks the url checked for this session so
// it is not immediately retried; callers keep the placeholder.
func (c *Cache) fetch(url string) {
	img, err := c.download(url)

	c.mu.Lock()
	delete(c.pending, url)
	if err != nil {
		c.failed[url] = struct{}{}
		c.mu.Unlock()
		c.logger.Warn("Avatar fetch failed", "url", url, "error", err.Error())
		return
	}
	c.mem[url] = img
	subs := c.observers[url]
	delete(c.observers, url)
	c.mu.Unlock()

	if err := c.saveDisk(url, img); err != nil {
		c.logger.Error("Could not persist avatar", "url", url, "error", err.Error())
	}
	for _, fn := range subs {
		fn(img)
	}
}

func (c *Cache) download(url string) (image.Image, error) {
	resp, err := c.httpCli.Get(url)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get: unexpected status %d", resp.StatusCode)
	}
	src, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return normalize(src), nil
}

func (c *Cache) saveDisk(url string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := os.WriteFile(c.path(url), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// normalize center-crops the source to a square, scales it to Size and
// clips it to a circle.
func normalize(src image.Image) image.Image {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	sq := image.Rect(0, 0, side, side).Add(image.Pt(
		b.Min.X+(b.Dx()-side)/2,
		b.Min.Y+(b.Dy()-side)/2,
	))

	scaled := image.NewRGBA(image.Rect(0, 0, Size, Size))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, sq, xdraw.Over, nil)

	out := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.DrawMask(out, out.Bounds(), scaled, image.Point{}, circleMask(), image.Point{}, draw.Over)
	return out
}
