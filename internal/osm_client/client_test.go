package osm_client

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"osmview/internal/tile"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{10, 20, 30, 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type recorder struct {
	mu     sync.Mutex
	tiles  []tile.Tile
	errors []string
}

func (r *recorder) TileReady(t tile.Tile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiles = append(r.tiles, t)
}

func (r *recorder) TileError(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, reason)
}

func newClient(t *testing.T, opts Options) (*Client, *recorder) {
	t.Helper()

	c, err := New(opts, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)

	rec := &recorder{}
	c.Subscribe(rec)
	return c, rec
}

func wait(t *testing.T, c *Client) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.WaitOne(ctx); err != nil {
		t.Fatalf("no completion: %v", err)
	}
}

func TestGetTileOutOfBounds(t *testing.T) {
	c, _ := newClient(t, Options{})

	tl, status := c.GetTile(3, 8, 0)
	if status != OutOfBounds {
		t.Fatalf("status = %s, want out_of_bounds", status)
	}
	if tl.Placeholder != tile.OutOfMap || tl.Image == nil {
		t.Errorf("expected out-of-map placeholder, got %s", tl.Placeholder)
	}
	if c.Stats() != (Stats{}) {
		t.Errorf("out of bounds lookup changed state: %+v", c.Stats())
	}

	if _, status := c.GetTile(3, 0, -1); status != OutOfBounds {
		t.Errorf("negative y: status = %s", status)
	}
}

func TestGetTileIdempotentMiss(t *testing.T) {
	c, _ := newClient(t, Options{})
	c.SetCacheDirectory(t.TempDir())

	for i := 0; i < 3; i++ {
		tl, status := c.GetTile(5, 10, 12)
		if status != Miss {
			t.Fatalf("call %d: status = %s, want miss", i, status)
		}
		if tl.Placeholder != tile.Queued {
			t.Errorf("call %d: placeholder = %s, want queued", i, tl.Placeholder)
		}
	}

	if c.Stats() != (Stats{}) {
		t.Errorf("misses changed counters: %+v", c.Stats())
	}
}

func TestColdFetchCycle(t *testing.T) {
	data := pngBytes(t)

	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.UserAgent()
		w.Write(data)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c, rec := newClient(t, Options{})
	if !c.SetCacheDirectory(dir) {
		t.Fatal("SetCacheDirectory failed")
	}
	if !c.SetTileServer(srv.URL + "/") {
		t.Fatal("SetTileServer failed")
	}

	if _, status := c.GetTile(5, 10, 12); status != Miss {
		t.Fatalf("status = %s, want miss", status)
	}

	if res := c.StartDownload(5, 10, 12); res != Started {
		t.Fatalf("StartDownload = %s", res)
	}
	if c.State(5, 10, 12) != Downloading {
		t.Errorf("state = %s, want downloading", c.State(5, 10, 12))
	}
	if tl, _ := c.GetTile(5, 10, 12); tl.Placeholder != tile.Downloading {
		t.Errorf("placeholder while in flight = %s", tl.Placeholder)
	}

	wait(t, c)

	if gotPath != "/5/10/12.png" {
		t.Errorf("requested %s", gotPath)
	}
	if gotAgent != DefaultUserAgent {
		t.Errorf("User-Agent = %q", gotAgent)
	}

	if len(rec.tiles) != 1 || rec.tiles[0].Key != tile.NewKey(5, 10, 12) || rec.tiles[0].Image == nil {
		t.Fatalf("tile ready notifications: %+v", rec.tiles)
	}

	if _, status := c.GetTile(5, 10, 12); status != MemoryHit {
		t.Errorf("status after download = %s, want memory_hit", status)
	}

	onDisk, err := os.ReadFile(filepath.Join(dir, "5", "10", "12.png"))
	if err != nil {
		t.Fatalf("tile not written to disk: %v", err)
	}
	if !bytes.Equal(onDisk, data) {
		t.Error("disk file differs from downloaded bytes")
	}

	s := c.Stats()
	if s.TilesDownloaded != 1 || s.Downloading != 0 || s.RamTilesLoaded != 1 {
		t.Errorf("stats = %+v", s)
	}
	if c.State(5, 10, 12) != Idle {
		t.Errorf("state after success = %s", c.State(5, 10, 12))
	}
}

func TestDiskHitPromotion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "7", "3", "4.png")
	os.MkdirAll(filepath.Dir(path), 0755)
	if err := os.WriteFile(path, pngBytes(t), 0644); err != nil {
		t.Fatal(err)
	}

	c, _ := newClient(t, Options{})
	c.SetCacheDirectory(dir)

	if _, status := c.GetTile(7, 3, 4); status != DiskHit {
		t.Fatalf("first lookup = %s, want disk_hit", status)
	}
	if _, status := c.GetTile(7, 3, 4); status != MemoryHit {
		t.Fatalf("second lookup = %s, want memory_hit", status)
	}
	if c.HddTilesLoaded() != 1 || c.RamTilesLoaded() != 1 || c.MemoryTilesNow() != 1 {
		t.Errorf("stats = %+v", c.Stats())
	}
}

func TestDiskTierRespectsMemoryBound(t *testing.T) {
	dir := t.TempDir()
	data := pngBytes(t)
	for y := 0; y < 10; y++ {
		path := filepath.Join(dir, "4", "1", strconv.Itoa(y)+".png")
		os.MkdirAll(filepath.Dir(path), 0755)
		os.WriteFile(path, data, 0644)
	}

	c, _ := newClient(t, Options{MaxMemoryTiles: 3})
	c.SetCacheDirectory(dir)

	for y := 0; y < 10; y++ {
		c.GetTile(4, 1, y)
		if c.MemoryTilesNow() > c.MaxMemoryTiles() {
			t.Fatalf("memory tier grew to %d", c.MemoryTilesNow())
		}
	}
}

func TestDefaultEvictionIsInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	data := pngBytes(t)
	for x := 0; x < 3; x++ {
		path := filepath.Join(dir, "5", strconv.Itoa(x), "0.png")
		os.MkdirAll(filepath.Dir(path), 0755)
		os.WriteFile(path, data, 0644)
	}

	c, _ := newClient(t, Options{MaxMemoryTiles: 2})
	c.SetCacheDirectory(dir)

	steps := []struct {
		x    int
		want Status
	}{
		{0, DiskHit},
		{1, DiskHit},
		{0, MemoryHit},
		{2, DiskHit},
		// Reads do not refresh a key; tile 0 was stored first and is gone.
		{0, DiskHit},
	}
	for i, s := range steps {
		if _, status := c.GetTile(5, s.x, 0); status != s.want {
			t.Fatalf("step %d: GetTile(5/%d/0) = %s, want %s", i, s.x, status, s.want)
		}
	}
}

func TestDownloadConcurrencyBound(t *testing.T) {
	release := make(chan struct{})
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write(data)
	}))
	defer srv.Close()

	c, rec := newClient(t, Options{MaxDownloadingTiles: 2})
	c.SetTileServer(srv.URL)

	if c.StartDownload(1, 0, 0) != Started || c.StartDownload(1, 0, 1) != Started {
		t.Fatal("first two downloads should start")
	}
	if !c.DownloadQueueFull() {
		t.Fatal("queue should be full with 2 in flight")
	}

	if res := c.StartDownload(1, 1, 0); res != QueueFull {
		t.Errorf("third download = %s, want queue_full", res)
	}
	if c.Stats().Downloading != 2 {
		t.Errorf("in-flight count = %d, want 2", c.Stats().Downloading)
	}
	if c.State(1, 1, 0) != Queued {
		t.Errorf("refused key state = %s, want queued", c.State(1, 1, 0))
	}
	if len(rec.errors) != 1 || rec.errors[0] != "Too many tiles downloading." {
		t.Errorf("errors = %v", rec.errors)
	}

	close(release)
	wait(t, c)
	wait(t, c)

	if c.DownloadQueueFull() {
		t.Error("queue still full after completions")
	}
	if res := c.StartDownload(1, 1, 0); res != Started {
		t.Errorf("retry = %s, want started", res)
	}
	wait(t, c)
}

func TestStartDownloadDeduplicates(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write(data)
	}))
	defer srv.Close()

	c, _ := newClient(t, Options{})
	c.SetTileServer(srv.URL)

	for i := 0; i < 3; i++ {
		if res := c.StartDownload(2, 1, 1); res != Started {
			t.Fatalf("call %d = %s", i, res)
		}
	}
	if c.Stats().Downloading != 1 {
		t.Errorf("in-flight = %d, want 1", c.Stats().Downloading)
	}

	close(release)
	wait(t, c)

	if hits.Load() != 1 {
		t.Errorf("server saw %d requests, want 1", hits.Load())
	}
}

func TestServerNotSet(t *testing.T) {
	c, rec := newClient(t, Options{})

	if res := c.StartDownload(1, 0, 0); res != ServerNotSet {
		t.Fatalf("StartDownload = %s, want server_not_set", res)
	}
	if len(rec.errors) != 1 || rec.errors[0] != "Tile server not set." {
		t.Errorf("errors = %v", rec.errors)
	}
	if c.State(1, 0, 0) != Idle {
		t.Errorf("state = %s", c.State(1, 0, 0))
	}
}

func TestDownloadFailureThenRecovery(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	c, err := New(Options{}, nil, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	rec := &recorder{}
	c.Subscribe(rec)
	c.SetTileServer(srv.URL)

	c.StartDownload(3, 2, 1)
	wait(t, c)

	if c.State(3, 2, 1) != Errored {
		t.Fatalf("state = %s, want errored", c.State(3, 2, 1))
	}
	tl, status := c.GetTile(3, 2, 1)
	if status != Miss || tl.Placeholder != tile.Error {
		t.Errorf("GetTile = %s/%s, want miss/error", status, tl.Placeholder)
	}
	if len(rec.errors) != 1 || !strings.HasPrefix(rec.errors[0], "Download error: ") {
		t.Errorf("errors = %v", rec.errors)
	}
	if c.MemoryTilesNow() != 0 || len(rec.tiles) != 0 {
		t.Error("failed download touched the memory tier")
	}
	if logs.FilterMessage("OSM tile error").Len() != 1 {
		t.Errorf("expected one warning, got %d", logs.Len())
	}

	fail.Store(false)
	c.StartDownload(3, 2, 1)
	wait(t, c)

	if c.State(3, 2, 1) != Idle {
		t.Errorf("state after recovery = %s", c.State(3, 2, 1))
	}
	if _, status := c.GetTile(3, 2, 1); status != MemoryHit {
		t.Errorf("status after recovery = %s", status)
	}
}

func TestClearCacheForgetsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	for _, clear := range []string{"memory", "all"} {
		t.Run(clear, func(t *testing.T) {
			c, _ := newClient(t, Options{})
			c.SetTileServer(srv.URL)

			for x := 0; x < 3; x++ {
				c.StartDownload(4, x, 1)
			}
			for x := 0; x < 3; x++ {
				wait(t, c)
			}
			if got := c.Stats().Errored; got != 3 {
				t.Fatalf("errored = %d, want 3", got)
			}

			if clear == "memory" {
				c.ClearCacheMemory()
			} else {
				c.ClearCache()
			}

			if got := c.Stats().Errored; got != 0 {
				t.Errorf("errored after clear = %d", got)
			}
			if c.State(4, 0, 1) != Idle {
				t.Errorf("state after clear = %s", c.State(4, 0, 1))
			}
			if tl, _ := c.GetTile(4, 0, 1); tl.Placeholder != tile.Queued {
				t.Errorf("placeholder after clear = %s", tl.Placeholder)
			}
		})
	}
}

func TestUndecodablePayloadIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c, rec := newClient(t, Options{})
	c.SetCacheDirectory(dir)
	c.SetTileServer(srv.URL)

	c.StartDownload(1, 1, 1)
	wait(t, c)

	if c.State(1, 1, 1) != Errored || len(rec.tiles) != 0 {
		t.Error("garbage payload should be treated as a failed download")
	}
	if _, err := os.Stat(filepath.Join(dir, "1", "1", "1.png")); !os.IsNotExist(err) {
		t.Error("garbage payload written to disk")
	}
}

func TestCacheWriteErrorIsNotFatal(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c, rec := newClient(t, Options{})
	c.SetCacheDirectory(dir)
	c.SetTileServer(srv.URL)

	// A regular file where the zoom directory belongs blocks the write.
	if err := os.WriteFile(filepath.Join(dir, "6"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	c.StartDownload(6, 1, 2)
	wait(t, c)

	if len(rec.errors) != 1 || !strings.HasPrefix(rec.errors[0], "Cache error: ") {
		t.Errorf("errors = %v", rec.errors)
	}
	if len(rec.tiles) != 1 {
		t.Fatal("tile should still be delivered")
	}
	if _, status := c.GetTile(6, 1, 2); status != MemoryHit {
		t.Errorf("status = %s, want memory_hit", status)
	}
	if c.TilesDownloaded() != 1 {
		t.Errorf("TilesDownloaded = %d", c.TilesDownloaded())
	}
}

func TestSetTileServerValidation(t *testing.T) {
	c, _ := newClient(t, Options{})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://tile.openstreetmap.org", true},
		{"http://c.osm.rrze.fau.de/osmhd/", true},
		{"not a url", false},
		{"/relative/path", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := c.SetTileServer(tt.url); got != tt.want {
			t.Errorf("SetTileServer(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	if c.TileServer() != "http://c.osm.rrze.fau.de/osmhd" {
		t.Errorf("TileServer() = %q", c.TileServer())
	}
}

func TestSetCacheDirectory(t *testing.T) {
	c, _ := newClient(t, Options{})

	nested := filepath.Join(t.TempDir(), "a", "b")
	if !c.SetCacheDirectory(nested) {
		t.Fatal("nested directory should be created")
	}
	if info, err := os.Stat(nested); err != nil || !info.IsDir() {
		t.Error("directory missing")
	}

	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, []byte("x"), 0644)
	if c.SetCacheDirectory(file) {
		t.Error("regular file accepted as cache directory")
	}
	if c.CacheDirectory() != "" {
		t.Error("disk tier should be disabled after a failed set")
	}
}

func TestClearCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2", "1", "1.png")
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, pngBytes(t), 0644)

	c, _ := newClient(t, Options{})
	c.SetCacheDirectory(dir)
	c.GetTile(2, 1, 1)

	c.ClearCacheMemory()
	if c.MemoryTilesNow() != 0 {
		t.Error("ClearCacheMemory left tiles")
	}
	if _, status := c.GetTile(2, 1, 1); status != DiskHit {
		t.Errorf("disk tier should survive ClearCacheMemory, got %s", status)
	}

	c.ClearCache()
	if c.MemoryTilesNow() != 0 {
		t.Error("ClearCache left tiles in memory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("ClearCache left files on disk")
	}
	if _, status := c.GetTile(2, 1, 1); status != Miss {
		t.Errorf("status after ClearCache = %s", status)
	}
}

func TestUpdateDrainsCompletions(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	c, rec := newClient(t, Options{})
	c.SetTileServer(srv.URL)
	c.StartDownload(1, 0, 0)
	c.StartDownload(1, 1, 0)

	deadline := time.Now().Add(5 * time.Second)
	applied := 0
	for applied < 2 && time.Now().Before(deadline) {
		applied += c.Update()
		time.Sleep(5 * time.Millisecond)
	}

	if applied != 2 || len(rec.tiles) != 2 {
		t.Errorf("applied %d completions, %d tiles ready", applied, len(rec.tiles))
	}
}
