package utils

import (
	"github.com/dustin/go-humanize"
)

// ConvertBytesToHumanReadable converts a given number of bytes into a
// binary-prefixed human-readable form (e.g. 500 KiB, 1.5 MiB).
func ConvertBytesToHumanReadable(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}
