package bytesize

import (
	"strconv"
	"strings"
)

// Bandwidth suffixes are binary multiples: a limit of "4 MB/s" means
// 4*1024*1024 bytes per second.
const (
	bandwidthKB = 1024
	bandwidthMB = 1024 * 1024
	bandwidthGB = 1024 * 1024 * 1024
)

// ParseBandwidth converts a user-facing bandwidth string into a byte-per-second
// limit. "unlimited", the empty string, and unrecognized values all mean no
// limit and return 0. Recognized suffixes are KB/s, MB/s, and GB/s.
func ParseBandwidth(value string) int64 {
	if value == "" || value == "unlimited" {
		return 0
	}
	cleaned := strings.ReplaceAll(value, " ", "")

	for _, unit := range []struct {
		suffix     string
		multiplier int64
	}{
		{"GB/s", bandwidthGB},
		{"MB/s", bandwidthMB},
		{"KB/s", bandwidthKB},
	} {
		if strings.HasSuffix(cleaned, unit.suffix) {
			num, err := strconv.ParseFloat(strings.TrimSuffix(cleaned, unit.suffix), 64)
			if err != nil {
				return 0
			}
			return int64(num * float64(unit.multiplier))
		}
	}
	return 0
}
