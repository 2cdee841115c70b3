package metadata

import "time"

// TimestampFormat is the RFC3339 seconds-precision, UTC "Z" form the
// lastmodified field and the MAC's associated data are rendered in.
// No fractional seconds, matching SOPS's own metadata.
const TimestampFormat = "2006-01-02T15:04:05Z"

// FormatTimestamp renders t in the wire timestamp form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampFormat)
}

// ParseTimestamp parses the wire timestamp form.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}
