package sensors

import "strings"

// FormatLogLine renders the report as " KEY=value" fragments in entry order.
// The capture time is not part of the line; the log sink prefixes it.
func FormatLogLine(r *Report) string {
	var b strings.Builder
	for _, e := range r.entries {
		for _, rd := range e.Readings {
			b.WriteByte(' ')
			b.WriteString(rd.Key)
			b.WriteByte('=')
			b.WriteString(rd.Value.String())
		}
	}
	return b.String()
}
