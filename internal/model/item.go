// Package model defines the home-screen records held by the store and the
// change events recorded against them.
package model

// Item is a single placed home-screen entry (shortcut, widget, folder).
// The store only cares about ID; the remaining fields are payload.
type Item struct {
	ID        int    `json:"id"`
	Container int    `json:"container"`
	Screen    int    `json:"screen"`
	CellX     int    `json:"cell_x"`
	CellY     int    `json:"cell_y"`
	SpanX     int    `json:"span_x,omitempty"`
	SpanY     int    `json:"span_y,omitempty"`
	Title     string `json:"title,omitempty"`
	Intent    string `json:"intent,omitempty"`
}
