package osm_client

import "osmview/internal/tile"

// Listener receives client notifications.
type Listener interface {
	TileReady(t tile.Tile)
	TileError(reason string)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnTileReady func(t tile.Tile)
	OnError     func(reason string)
}

func (f ListenerFuncs) TileReady(t tile.Tile) {
	if f.OnTileReady != nil {
		f.OnTileReady(t)
	}
}

func (f ListenerFuncs) TileError(reason string) {
	if f.OnError != nil {
		f.OnError(reason)
	}
}
