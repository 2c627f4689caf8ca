// Package render prints command results to stdout in the format selected
// by the global --output flag.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format selects the encoding for command output.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// active is set once by the root command before any subcommand runs.
var active = YAML

// SetFormat sets the process-wide output format. Unknown names fall back
// to yaml.
func SetFormat(name string) {
	switch Format(name) {
	case JSON:
		active = JSON
	default:
		active = YAML
	}
}

// Document writes v to stdout in the active format.
func Document(v any) error {
	return Write(os.Stdout, active, v)
}

// Write encodes v to w in the given format.
func Write(w io.Writer, format Format, v any) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// JSONKeys re-encodes v through its JSON form, so the printed keys match
// the names v uses on disk and on the wire no matter which output format
// is active.
func JSONKeys(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
