package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// OutputFormat represents the format for replay output
type OutputFormat string

const (
	// TextFormat is plain text output (default)
	TextFormat OutputFormat = "text"

	// JSONFormat is output wrapped in a JSON object
	JSONFormat OutputFormat = "json"
)

// IsValid checks if the output format is valid
func (f OutputFormat) IsValid() bool {
	return f == TextFormat || f == JSONFormat
}

// String returns the string representation of the output format
func (f OutputFormat) String() string {
	return string(f)
}

// Selection is one confirmed token in a replay result.
type Selection struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Ref   string `json:"ref"`
	Label string `json:"label"`
}

// Result is what a replayed document looks like once the script finished.
type Result struct {
	Value      string      `json:"value"`
	Text       string      `json:"text"`
	Selections []Selection `json:"selections"`
}

// FormatOutput formats the given result according to the specified format.
// Selections are ordered by kind, then label.
func FormatOutput(result Result, format OutputFormat) (string, error) {
	selections := append([]Selection(nil), result.Selections...)
	sort.SliceStable(selections, func(i, j int) bool {
		if selections[i].Kind != selections[j].Kind {
			return selections[i].Kind < selections[j].Kind
		}
		return selections[i].Label < selections[j].Label
	})
	if selections == nil {
		selections = []Selection{}
	}
	result.Selections = selections

	switch format {
	case TextFormat:
		var b strings.Builder
		b.WriteString(result.Value)
		for _, s := range selections {
			fmt.Fprintf(&b, "\n%s\t%s\t%s", s.Kind, s.Ref, s.Label)
		}
		return b.String(), nil
	case JSONFormat:
		jsonBytes, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(jsonBytes), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}
