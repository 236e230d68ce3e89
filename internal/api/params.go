package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// pathID parses the :id path parameter
func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewError(http.StatusBadRequest, "Invalid id")
	}
	return id, nil
}

// parseOptionalID reads an id that may be absent. Empty, "null" and
// "undefined" all mean no id.
func parseOptionalID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "", "null", "undefined":
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid id %q", raw)
	}
	return &id, nil
}

// OptionalID is a JSON category reference: a number, a numeric string or null
type OptionalID struct {
	Value *int64
}

// UnmarshalJSON implements json.Unmarshaler
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	id, err := parseOptionalID(s)
	if err != nil {
		return err
	}
	o.Value = id
	return nil
}

// MarshalJSON implements json.Marshaler
func (o OptionalID) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(*o.Value, 10)), nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, NewError(http.StatusBadRequest, "Invalid "+key)
	}
	return n, nil
}
