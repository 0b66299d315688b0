package common

import (
	"net/http"
	"strconv"
)

// maxListLimit caps how many items one listing call may return
const maxListLimit = 100

// ListWindow is the offset/limit slice a listing endpoint serves. A zero
// Limit means "use the query handler's default".
type ListWindow struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ExtractListWindow reads offset/limit query parameters. Malformed or
// negative values fall back to zero rather than erroring; the window is
// advisory, not part of the request contract.
func ExtractListWindow(r *http.Request) ListWindow {
	return ListWindow{
		Offset: queryInt(r, "offset"),
		Limit:  clampLimit(queryInt(r, "limit")),
	}
}

func clampLimit(limit int) int {
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
