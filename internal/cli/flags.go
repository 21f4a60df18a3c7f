package cli

import "strings"

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty parts. Port and keyword flags take one comma-separated
// string so values keep their spaces.
func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
