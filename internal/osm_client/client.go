// Package osm_client is a three-tier map tile cache: an in-memory tier, an
// on-disk tier and a tile server. A Client is owned by one goroutine; the
// download goroutines it starts only report back over its completion channel.
package osm_client

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"osmview/internal/cache"
	"osmview/internal/tile"
)

// Status is the result of GetTile.
type Status int

const (
	OutOfBounds Status = -1
	Miss        Status = 0
	MemoryHit   Status = 1
	DiskHit     Status = 2
)

func (s Status) String() string {
	switch s {
	case OutOfBounds:
		return "out_of_bounds"
	case MemoryHit:
		return "memory_hit"
	case DiskHit:
		return "disk_hit"
	default:
		return "miss"
	}
}

// DownloadResult is the result of StartDownload.
type DownloadResult int

const (
	ServerNotSet DownloadResult = -3
	QueueFull    DownloadResult = -2
	Started      DownloadResult = 1
)

func (r DownloadResult) String() string {
	switch r {
	case ServerNotSet:
		return "server_not_set"
	case QueueFull:
		return "queue_full"
	default:
		return "started"
	}
}

// State is the download state of a single key. Keys without an entry are
// Idle.
type State int

const (
	Idle State = iota
	Queued
	Downloading
	Errored
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Downloading:
		return "downloading"
	case Errored:
		return "errored"
	default:
		return "idle"
	}
}

const (
	DefaultMaxMemoryTiles      = 600
	DefaultMaxDownloadingTiles = 6
	DefaultUserAgent           = "Firefox"

	maxTileBytes = 16 << 20
)

// Completion carries the outcome of one transfer back to the owner.
type Completion struct {
	ID   string
	Key  tile.Key
	Data []byte
	Err  error
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	MaxMemoryTiles      int
	MaxDownloadingTiles int
	CachePolicy         string
	UserAgent           string
	Timeout             time.Duration
}

// Stats is a snapshot of the client counters.
type Stats struct {
	TilesDownloaded int `json:"tiles_downloaded"`
	HddTilesLoaded  int `json:"hdd_tiles_loaded"`
	RamTilesLoaded  int `json:"ram_tiles_loaded"`
	MemoryTilesNow  int `json:"memory_tiles_now"`
	Downloading     int `json:"downloading"`
	Queued          int `json:"queued"`
	Errored         int `json:"errored"`
}

type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	userAgent  string

	memory     cache.Memory
	disk       cache.Disk
	tileServer string

	states         map[uint64]State
	downloading    int
	maxDownloading int

	completions chan Completion
	ctx         context.Context
	cancel      context.CancelFunc

	placeholders *tile.Placeholders
	listeners    []Listener

	tilesDownloaded int
	hddTilesLoaded  int
	ramTilesLoaded  int
}

// New creates a client with the disk tier and tile server unset. A nil
// httpClient gets one with opts.Timeout.
func New(opts Options, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if opts.MaxMemoryTiles <= 0 {
		opts.MaxMemoryTiles = DefaultMaxMemoryTiles
	}
	if opts.MaxDownloadingTiles <= 0 {
		opts.MaxDownloadingTiles = DefaultMaxDownloadingTiles
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	memory, err := cache.NewMemory(opts.CachePolicy, opts.MaxMemoryTiles, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		logger:         logger,
		httpClient:     httpClient,
		userAgent:      opts.UserAgent,
		memory:         memory,
		disk:           cache.NewNoopCache(),
		states:         make(map[uint64]State),
		maxDownloading: opts.MaxDownloadingTiles,
		completions:    make(chan Completion, 64),
		ctx:            ctx,
		cancel:         cancel,
		placeholders:   tile.NewPlaceholders(),
	}, nil
}

// Close aborts in-flight transfers. Their completions are dropped.
func (c *Client) Close() {
	c.cancel()
}

// SetCacheDirectory enables the disk tier at path, creating it if needed.
// On failure the disk tier is disabled and false is returned.
func (c *Client) SetCacheDirectory(path string) bool {
	if path == "" {
		c.disk = cache.NewNoopCache()
		return false
	}

	disk, err := cache.NewDisk(path, c.logger)
	if err != nil {
		c.logger.Warn("Disk cache disabled", zap.String("cache_dir", path), zap.Error(err))
		c.disk = cache.NewNoopCache()
		return false
	}

	c.disk = disk
	return true
}

func (c *Client) CacheDirectory() string {
	return c.disk.Dir()
}

// SetTileServer sets the base URL tiles are fetched from. Malformed URLs are
// rejected and leave the current server unchanged.
func (c *Client) SetTileServer(base string) bool {
	u, err := url.ParseRequestURI(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		c.logger.Warn("Invalid tile server URL", zap.String("url", base))
		return false
	}

	c.tileServer = strings.TrimRight(base, "/")
	c.logger.Info("Tile server set", zap.String("url", c.tileServer))
	return true
}

func (c *Client) TileServer() string {
	return c.tileServer
}

// Subscribe registers l for tile-ready and error notifications. Listeners
// run on the owner goroutine.
func (c *Client) Subscribe(l Listener) {
	c.listeners = append(c.listeners, l)
}

// GetTile returns what the memory and disk tiers hold for the key right now.
// It never touches the network; on a miss the returned tile carries the
// placeholder for the key's download state.
func (c *Client) GetTile(zoom, x, y int) (tile.Tile, Status) {
	key := tile.NewKey(zoom, x, y)

	if !key.Valid() {
		return c.placeholders.Tile(key, tile.OutOfMap), OutOfBounds
	}

	if t, ok := c.memory.Get(key); ok && t.Image != nil {
		c.ramTilesLoaded++
		return t, MemoryHit
	}

	if data, ok := c.disk.Get(key); ok {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err == nil {
			t := tile.New(key, img)
			c.memory.Set(t)
			c.hddTilesLoaded++
			return t, DiskHit
		}
		c.logger.Debug("Unreadable cached tile", zap.String("tile", key.String()), zap.Error(err))
	}

	return c.placeholders.Tile(key, c.placeholderFor(key)), Miss
}

func (c *Client) placeholderFor(key tile.Key) tile.Placeholder {
	switch c.states[key.Pack()] {
	case Downloading:
		return tile.Downloading
	case Errored:
		return tile.Error
	default:
		return tile.Queued
	}
}

// State reports the download state of a key.
func (c *Client) State(zoom, x, y int) State {
	return c.states[tile.NewKey(zoom, x, y).Pack()]
}

// DownloadQueueFull reports whether the in-flight limit is reached.
func (c *Client) DownloadQueueFull() bool {
	return c.downloading >= c.maxDownloading
}

// StartDownload requests the tile from the server. A key that is already
// downloading is not requested twice but still reports Started.
func (c *Client) StartDownload(zoom, x, y int) DownloadResult {
	key := tile.NewKey(zoom, x, y)
	k := key.Pack()

	if c.tileServer == "" {
		c.emitError("Tile server not set.")
		return ServerNotSet
	}

	if c.DownloadQueueFull() {
		if c.states[k] == Idle {
			c.states[k] = Queued
		}
		c.emitError("Too many tiles downloading.")
		return QueueFull
	}

	if c.states[k] == Downloading {
		return Started
	}

	c.states[k] = Downloading
	c.downloading++

	id := uuid.New().String()
	tileURL := fmt.Sprintf("%s/%d/%d/%d.png", c.tileServer, zoom, x, y)

	c.logger.Debug("Tile download started",
		zap.String("download_id", id),
		zap.String("tile", key.String()),
		zap.String("url", tileURL),
	)

	go c.fetch(id, key, tileURL)

	return Started
}

func (c *Client) fetch(id string, key tile.Key, tileURL string) {
	data, err := c.get(tileURL)

	select {
	case c.completions <- Completion{ID: id, Key: key, Data: data, Err: err}:
	case <-c.ctx.Done():
	}
}

func (c *Client) get(tileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", tileURL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read tile body: %w", err)
	}

	return data, nil
}

// Completions is the channel download goroutines report on. Owners that run
// their own select loop receive from it and pass each value to Apply.
func (c *Client) Completions() <-chan Completion {
	return c.completions
}

// Apply folds a finished transfer into the cache tiers.
func (c *Client) Apply(comp Completion) {
	key := comp.Key
	k := key.Pack()

	if c.states[k] == Downloading {
		delete(c.states, k)
		c.downloading--
	}

	log := c.logger.With(zap.String("download_id", comp.ID), zap.String("tile", key.String()))

	if comp.Err != nil {
		c.states[k] = Errored
		c.emitError("Download error: " + comp.Err.Error())
		return
	}

	img, _, err := image.Decode(bytes.NewReader(comp.Data))
	if err != nil {
		c.states[k] = Errored
		c.emitError("Download error: " + err.Error())
		return
	}

	if err := c.disk.Set(key, comp.Data); err != nil {
		c.emitError("Cache error: " + err.Error())
	}

	c.tilesDownloaded++
	delete(c.states, k)

	log.Debug("Tile downloaded", zap.Int("bytes", len(comp.Data)))
	c.emitTile(tile.New(key, img))
}

// Update applies every completion that is already waiting and returns how
// many were applied.
func (c *Client) Update() int {
	n := 0
	for {
		select {
		case comp := <-c.completions:
			c.Apply(comp)
			n++
		default:
			return n
		}
	}
}

// WaitOne blocks until one completion is applied or ctx ends.
func (c *Client) WaitOne(ctx context.Context) error {
	select {
	case comp := <-c.completions:
		c.Apply(comp)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies completions until ctx ends. Use it only when nothing else
// calls into the client.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case comp := <-c.completions:
			c.Apply(comp)
		}
	}
}

func (c *Client) emitTile(t tile.Tile) {
	if !c.memory.Has(t.Key) {
		c.memory.Set(t)
	}

	for _, l := range c.listeners {
		l.TileReady(t)
	}
}

func (c *Client) emitError(reason string) {
	c.logger.Warn("OSM tile error", zap.String("reason", reason))

	for _, l := range c.listeners {
		l.TileError(reason)
	}
}

// ClearCache removes the disk tier contents and empties the memory tier.
func (c *Client) ClearCache() {
	if err := c.disk.Clear(); err != nil {
		c.logger.Error("Failed to clear disk cache", zap.Error(err))
	}
	c.memory.Clear()
	c.forgetFailures()
}

// ClearCacheMemory empties the memory tier. Failed keys become idle again so
// they can be retried.
func (c *Client) ClearCacheMemory() {
	c.memory.Clear()
	c.forgetFailures()
}

func (c *Client) forgetFailures() {
	for k, st := range c.states {
		if st == Errored {
			delete(c.states, k)
		}
	}
}

func (c *Client) MaxMemoryTiles() int {
	return c.memory.MaxSize()
}

func (c *Client) SetMaxMemoryTiles(n int) {
	c.memory.SetMaxSize(n)
}

func (c *Client) MaxDownloadingTiles() int {
	return c.maxDownloading
}

func (c *Client) SetMaxDownloadingTiles(n int) {
	c.maxDownloading = n
}

func (c *Client) TilesDownloaded() int { return c.tilesDownloaded }
func (c *Client) HddTilesLoaded() int  { return c.hddTilesLoaded }
func (c *Client) RamTilesLoaded() int  { return c.ramTilesLoaded }
func (c *Client) MemoryTilesNow() int  { return c.memory.Len() }

func (c *Client) Stats() Stats {
	s := Stats{
		TilesDownloaded: c.tilesDownloaded,
		HddTilesLoaded:  c.hddTilesLoaded,
		RamTilesLoaded:  c.ramTilesLoaded,
		MemoryTilesNow:  c.memory.Len(),
		Downloading:     c.downloading,
	}

	for _, st := range c.states {
		switch st {
		case Queued:
			s.Queued++
		case Errored:
			s.Errored++
		}
	}

	return s
}
