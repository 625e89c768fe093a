package avatar

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"
)

func TestColorFor(t *testing.T) {
	// Same name, same color, every time.
	if ColorFor("alice") != ColorFor("alice") {
		t.Error("ColorFor is not deterministic")
	}

	// The result is always a palette entry.
	got := ColorFor("alice")
	found := false
	for _, c := range palette {
		if c == got {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("ColorFor returned %v, not in palette", got)
	}

	// Empty names hash too.
	_ = ColorFor("")
}

func TestPlaceholderDeterministic(t *testing.T) {
	a := encodePNG(t, Placeholder("alice"))
	b := encodePNG(t, Placeholder("alice"))
	if !bytes.Equal(a, b) {
		t.Error("Placeholder images for the same name differ")
	}

	if img := Placeholder("alice"); img.Bounds().Dx() != Size || img.Bounds().Dy() != Size {
		t.Errorf("Got bounds %v, want %dx%d", img.Bounds(), Size, Size)
	}

	// Corners lie outside the circle and stay transparent.
	img := Placeholder("alice")
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Error("Corner pixel is not transparent")
	}
}

func TestCache_GetDefaultURL(t *testing.T) {
	c := newTestCache(t, "https://example.test")

	for _, url := range []string{"", "default.png", "/default.png", "/static/default.png"} {
		img := c.Get("alice", url)
		if img == nil {
			t.Fatalf("Got nil for default url %q", url)
		}
	}
}

func TestCache_Resolve(t *testing.T) {
	c := newTestCache(t, "https://example.test")

	tests := []struct {
		in   string
		want string
	}{
		{in: "https://cdn.test/a.png", want: "https://cdn.test/a.png"},
		{in: "http://cdn.test/a.png", want: "http://cdn.test/a.png"},
		{in: "/avatars/a.png", want: "https://example.test/avatars/a.png"},
		{in: "avatars/a.png", want: "https://example.test/avatars/a.png"},
	}
	for _, tt := range tests {
		if got := c.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Two lookups while a fetch is in flight must produce exactly one network
// request; both get the placeholder now and the subscriber gets the real
// image later.
func TestCache_DownloadDeduplication(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Write(testPNG(t, 100, 80))
	}))
	defer srv.Close()

	c := newTestCache(t, srv.URL)
	url := srv.URL + "/avatars/a.png"

	done := make(chan image.Image, 1)
	c.Get("alice", url)
	c.Get("alice", url)
	c.Subscribe(url, func(img image.Image) { done <- img })
	close(release)

	select {
	case img := <-done:
		if img.Bounds().Dx() != Size || img.Bounds().Dy() != Size {
			t.Errorf("Got bounds %v, want %dx%d", img.Bounds(), Size, Size)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch never completed")
	}

	if got := requests.Load(); got != 1 {
		t.Errorf("Got %d requests, want 1", got)
	}

	// Now cached in memory: no further requests.
	c.Get("alice", url)
	if got := requests.Load(); got != 1 {
		t.Errorf("Got %d requests after cache hit, want 1", got)
	}
}

func TestCache_DiskTierSurvivesRestart(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write(testPNG(t, 64, 64))
	}))
	defer srv.Close()

	dir := t.TempDir()
	logger := slogt.New(t)

	first, err := New(logger, srv.URL, dir)
	if err != nil {
		t.Fatal(err)
	}
	url := srv.URL + "/a.png"

	done := make(chan image.Image, 1)
	first.Subscribe(url, func(img image.Image) { done <- img })
	first.Get("alice", url)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Fetch never completed")
	}

	// One file, named by the url hash.
	wantFile := filepath.Join(dir, fmt.Sprintf("%x.png", md5.Sum([]byte(url))))
	if _, err := os.Stat(wantFile); err != nil {
		t.Fatalf("Cache file missing: %v", err)
	}

	// A fresh cache over the same directory resolves from disk.
	second, err := New(logger, srv.URL, dir)
	if err != nil {
		t.Fatal(err)
	}
	img := second.Get("alice", url)
	if img.Bounds().Dx() != Size {
		t.Errorf("Got bounds %v, want %dx%d", img.Bounds(), Size, Size)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("Got %d requests, want 1 (disk hit expected)", got)
	}
}

// A failed fetch marks the url checked for the session; lookups keep
// returning the placeholder without hammering the server.
func TestCache_FailureNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCache(t, srv.URL)
	url := srv.URL + "/a.png"

	c.Get("alice", url)
	waitFor(t, func() bool { return requests.Load() == 1 })

	for i := 0; i < 20; i++ {
		if img := c.Get("alice", url); img == nil {
			t.Fatal("Got nil, want placeholder")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("Got %d requests, want 1", got)
	}
}

func TestCache_PlaceholderWhileFetching(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	// Unblock the handler before the server's close waits on it.
	defer close(release)

	c := newTestCache(t, srv.URL)

	got := encodePNG(t, c.Get("alice", srv.URL+"/a.png"))
	want := encodePNG(t, Placeholder("alice"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Error("In-flight lookup did not return the placeholder")
	}
}

func newTestCache(t *testing.T, baseURL string) *Cache {
	t.Helper()
	c, err := New(slogt.New(t), baseURL, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 0x33, G: 0x66, B: 0x99, A: 0xff})
		}
	}
	return encodePNG(t, img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition never met")
}
