package types

import "encoding/json"

// DesignSnapshot freezes a design at the moment it enters a cart or order so
// later edits to the design never change what gets printed.
type DesignSnapshot struct {
	DesignID   string          `json:"design_id"`
	PreviewURL string          `json:"preview_url"`
	Canvas     json.RawMessage `json:"canvas,omitempty"`
}
