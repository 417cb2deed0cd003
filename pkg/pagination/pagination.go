// Package pagination encodes and resolves opaque resumable list cursors.
//
// A cursor is the standard base64 encoding of a JSON object
// {"limit": <int>, "offset": <int>}. Both fields are optional and unknown
// fields are ignored, so newer cursors remain readable by older decoders.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/liliang-cn/sqcatalog/pkg/core"
)

// Request is the pagination input of a list call. A non-nil After cursor
// overrides Limit and Offset field by field.
type Request struct {
	Limit  *int    `json:"limit,omitempty"`
	Offset *int    `json:"offset,omitempty"`
	After  *string `json:"after,omitempty"`
}

// Cursor is the decoded content of an opaque cursor
type Cursor struct {
	Limit  *int
	Offset *int
}

// Window is the effective slice of results a list call returns. A nil Limit
// means no upper bound.
type Window struct {
	Limit  *int
	Offset int
}

type wireCursor struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Encode builds the cursor for the given limit and offset
func Encode(limit, offset int) string {
	data, _ := json.Marshal(wireCursor{Limit: limit, Offset: offset})
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses a cursor produced by Encode. Failures wrap
// core.ErrMalformedCursor.
func Decode(cursor string) (Cursor, error) {
	cursor = strings.TrimSpace(cursor)
	data, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(cursor)
		if err != nil {
			return Cursor{}, fmt.Errorf("%w, could not be parsed", core.ErrMalformedCursor)
		}
	}

	if !gjson.ValidBytes(data) {
		return Cursor{}, fmt.Errorf("%w, could not be parsed", core.ErrMalformedCursor)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return Cursor{}, fmt.Errorf("%w, not an object", core.ErrMalformedCursor)
	}

	var c Cursor
	if c.Limit, err = intField(doc, "limit"); err != nil {
		return Cursor{}, err
	}
	if c.Offset, err = intField(doc, "offset"); err != nil {
		return Cursor{}, err
	}
	return c, nil
}

func intField(doc gjson.Result, name string) (*int, error) {
	v := doc.Get(name)
	if !v.Exists() {
		return nil, nil
	}
	if v.Type != gjson.Number {
		return nil, fmt.Errorf("%w, %s was not a number", core.ErrMalformedCursor, name)
	}

	n, err := strconv.ParseInt(v.Raw, 10, 0)
	if err != nil {
		// integral values written in float form, such as 2.0 or 1e2
		f := v.Float()
		if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return nil, fmt.Errorf("%w, %s was not an integer", core.ErrMalformedCursor, name)
		}
		n = int64(f)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w, %s was negative", core.ErrMalformedCursor, name)
	}

	i := int(n)
	if int64(i) != n {
		return nil, fmt.Errorf("%w, %s is out of range", core.ErrMalformedCursor, name)
	}
	return &i, nil
}

// Resolve computes the effective window of a request. A nil request means
// no limit and offset zero. Cursor failures wrap core.ErrMalformedCursor and
// negative request values wrap core.ErrInvalidPagination.
func Resolve(req *Request) (Window, error) {
	var w Window
	if req == nil {
		return w, nil
	}

	limit, offset := req.Limit, req.Offset
	if req.After != nil {
		c, err := Decode(*req.After)
		if err != nil {
			return Window{}, err
		}
		if c.Limit != nil {
			limit = c.Limit
		}
		if c.Offset != nil {
			offset = c.Offset
		}
	}

	if limit != nil {
		if *limit < 0 {
			return Window{}, fmt.Errorf("%w: limit must not be negative", core.ErrInvalidPagination)
		}
		l := *limit
		w.Limit = &l
	}
	if offset != nil {
		if *offset < 0 {
			return Window{}, fmt.Errorf("%w: offset must not be negative", core.ErrInvalidPagination)
		}
		w.Offset = *offset
	}
	return w, nil
}
