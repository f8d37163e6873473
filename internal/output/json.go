// Package output renders command results for terminals and JSON mode.
package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// PrintJSON outputs any value as formatted JSON to stdout.
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintJSONError outputs an error as JSON to stdout.
func PrintJSONError(err error, exitCode int) {
	PrintJSON(map[string]any{
		"error":    err.Error(),
		"exitCode": exitCode,
	})
}

// Println writes a formatted line to stdout.
func Println(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
