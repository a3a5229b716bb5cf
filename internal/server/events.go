package server

import (
	"fmt"

	"github.com/ASHISH26940/homestate/internal/model"
)

// eventJSON is the wire form of a model.ChangeEvent.
type eventJSON struct {
	Type  string       `json:"type"`
	Owner string       `json:"owner,omitempty"`
	Items []model.Item `json:"items,omitempty"`
	IDs   []int        `json:"ids,omitempty"`
}

func encodeEvents(events []model.ChangeEvent) []eventJSON {
	out := make([]eventJSON, 0, len(events))
	for _, e := range events {
		var enc eventJSON
		switch e := e.(type) {
		case model.Added:
			enc = eventJSON{Type: "added", Items: e.Items}
		case model.Removed:
			enc = eventJSON{Type: "removed", IDs: e.Matcher.IDs()}
		case model.Updated:
			enc = eventJSON{Type: "updated", Items: e.Items}
		}
		if owner := e.EventOwner(); owner != nil {
			enc.Owner = fmt.Sprint(owner)
		}
		out = append(out, enc)
	}
	return out
}
