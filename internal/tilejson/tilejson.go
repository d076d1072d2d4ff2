// Package tilejson builds TileJSON 2.2.0 documents for the catalog's
// listing endpoints.
package tilejson

// Document is the subset of TileJSON this server emits for a function
// source. Bounds and zoom range are the world defaults; a database
// function gives no way to introspect tighter ones.
type Document struct {
	TileJSON string    `json:"tilejson"`
	Name     string    `json:"name"`
	Tiles    []string  `json:"tiles"`
	MinZoom  int       `json:"minzoom"`
	MaxZoom  int       `json:"maxzoom"`
	Bounds   []float64 `json:"bounds"`
}

func New(name, tilesURL string) Document {
	return Document{
		TileJSON: "2.2.0",
		Name:     name,
		Tiles:    []string{tilesURL},
		MinZoom:  0,
		MaxZoom:  30,
		Bounds:   []float64{-180, -90, 180, 90},
	}
}
