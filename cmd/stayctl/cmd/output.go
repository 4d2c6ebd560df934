package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// render writes v in the configured output format.
func (a *app) render(w io.Writer, v any) error {
	switch a.settings.Output {
	case "yaml":
		// Round-trip through JSON so yaml keys follow the API's json tags.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// renderRaw writes a raw JSON body, re-indented when it parses.
func (a *app) renderRaw(w io.Writer, body []byte) error {
	var generic any
	if len(body) == 0 || json.Unmarshal(body, &generic) != nil {
		_, err := fmt.Fprintln(w, string(body))
		return err
	}
	return a.render(w, generic)
}
