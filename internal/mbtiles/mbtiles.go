// Package mbtiles writes tile archives in the MBTiles 1.2 sqlite layout.
// Rows are stored in TMS order, so y is flipped on the way in and out.
package mbtiles

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const Version = "1.2"

var ErrNotFound = errors.New("tile not found")

// Metadata fills the metadata table.
type Metadata struct {
	Name        string
	Description string
	Attribution string
	Format      string
	Bounds      orb.Bound
	MinZoom     maptile.Zoom
	MaxZoom     maptile.Zoom
}

func (m Metadata) items() map[string]string {
	format := m.Format
	if format == "" {
		format = "png"
	}
	center := m.Bounds.Center()

	return map[string]string{
		"name":        m.Name,
		"description": m.Description,
		"attribution": m.Attribution,
		"format":      format,
		"type":        "baselayer",
		"version":     Version,
		"bounds":      fmt.Sprintf(`%f,%f,%f,%f`, m.Bounds.Min.Lon(), m.Bounds.Min.Lat(), m.Bounds.Max.Lon(), m.Bounds.Max.Lat()),
		"center":      fmt.Sprintf(`%f,%f,%d`, center.Lon(), center.Lat(), (m.MinZoom+m.MaxZoom)/2),
		"minzoom":     strconv.Itoa(int(m.MinZoom)),
		"maxzoom":     strconv.Itoa(int(m.MaxZoom)),
	}
}

// Tile is one encoded tile ready for the archive.
type Tile struct {
	T    maptile.Tile
	Data []byte
}

func flipY(t maptile.Tile) uint32 {
	return (1 << uint32(t.Z)) - t.Y - 1
}

type Writer struct {
	db *sql.DB
}

// Create opens or creates the archive at path and records meta. Existing
// metadata entries are kept.
func Create(path string, meta Metadata) (*Writer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mbtiles: %w", err)
	}
	// locking_mode=EXCLUSIVE binds the lock to a single connection.
	db.SetMaxOpenConns(1)

	if err := setup(db, meta); err != nil {
		db.Close()
		return nil, err
	}

	return &Writer{db: db}, nil
}

func setup(db *sql.DB, meta Metadata) error {
	if err := optimizeConnection(db); err != nil {
		return fmt.Errorf("failed to set pragmas: %w", err)
	}

	if _, err := db.Exec("create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);"); err != nil {
		return fmt.Errorf("failed to create tiles table: %w", err)
	}
	if _, err := db.Exec("create table if not exists metadata (name text, value text);"); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}
	if _, err := db.Exec("create unique index if not exists name on metadata (name);"); err != nil {
		return fmt.Errorf("failed to create metadata index: %w", err)
	}
	if _, err := db.Exec("create unique index if not exists tile_index on tiles (zoom_level, tile_column, tile_row);"); err != nil {
		return fmt.Errorf("failed to create tile index: %w", err)
	}

	for name, value := range meta.items() {
		if _, err := db.Exec("insert or ignore into metadata (name, value) values (?, ?)", name, value); err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", name, err)
		}
	}
	return nil
}

func optimizeConnection(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA synchronous=1"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA locking_mode=EXCLUSIVE"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA journal_mode=OFF"); err != nil {
		return err
	}
	return nil
}

// WriteBatch inserts tiles in one transaction. Tiles already present are
// left untouched.
func (w *Writer) WriteBatch(tiles []Tile) error {
	if len(tiles) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}

	const sqlStr = "insert or ignore into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);"
	for _, t := range tiles {
		if _, err := tx.Exec(sqlStr, t.T.Z, t.T.X, flipY(t.T), t.Data); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert tile %d/%d/%d: %w", t.T.Z, t.T.X, t.T.Y, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Tile reads back the tile addressed in XYZ order.
func (w *Writer) Tile(t maptile.Tile) ([]byte, error) {
	var data []byte
	err := w.db.QueryRow(
		"select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
		t.Z, t.X, flipY(t),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tile: %w", err)
	}
	return data, nil
}

func (w *Writer) Count() (int, error) {
	var n int
	if err := w.db.QueryRow("select count(*) from tiles").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tiles: %w", err)
	}
	return n, nil
}

func (w *Writer) Metadata(name string) (string, error) {
	var value string
	err := w.db.QueryRow("select value from metadata where name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

func (w *Writer) Close() error {
	return w.db.Close()
}
