package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// MaxLimit caps a requested page size.
const MaxLimit = 500

// Params holds an optional result window extracted from a request. The zero
// value means unwindowed: the full result set is returned.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts limit/offset query parameters from the echo context.
// Absent or invalid parameters leave the window open.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 0 {
		limit = 0
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Windowed reports whether the request asked for a bounded page.
func (p Params) Windowed() bool {
	return p.Limit > 0 || p.Offset > 0
}
