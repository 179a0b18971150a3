package server

import (
	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
)

// goJSONSerializer plugs goccy/go-json into Echo in place of
// encoding/json; upload responses can carry thousands of rollup rows.
type goJSONSerializer struct{}

func (goJSONSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (goJSONSerializer) Deserialize(c echo.Context, i any) error {
	return json.NewDecoder(c.Request().Body).Decode(i)
}
