package config

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sintef/sensapp-go/internal/datamodel"
)

const maxBodyLimitBytes = 128 * 1024 * 1024 * 1024 // 128 GiB, per original_source/src/config.rs

var bodyLimitPattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*([a-zA-Z]*)$`)

var bodyLimitMultipliers = map[string]float64{
	"":    1,
	"b":   1,
	"k":   1_000,
	"kb":  1_000,
	"kib": 1024,
	"m":   1_000_000,
	"mb":  1_000_000,
	"mib": 1024 * 1024,
	"g":   1_000_000_000,
	"gb":  1_000_000_000,
	"gib": 1024 * 1024 * 1024,
	"t":   1_000_000_000_000,
	"tb":  1_000_000_000_000,
	"tib": 1024 * 1024 * 1024 * 1024,
}

// ParseHTTPBodyLimit parses an http_body_limit value ("10mb", "10MiB",
// "1.5gb", a bare byte count, ...) into a byte count, rejecting
// negative sizes, unrecognised units, and anything over 128 GiB.
// Grounded on original_source/src/config.rs's own
// byte_unit::Byte::parse_str usage and its test table: decimal units
// (b/k/kb/m/mb/g/gb/t/tb) are powers of 1000, binary units
// (kib/mib/gib/tib) are powers of 1024, matched case-insensitively.
func ParseHTTPBodyLimit(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	m := bodyLimitPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, datamodel.NewError(datamodel.ConfigError, "config: invalid http_body_limit %q", s)
	}

	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, datamodel.WrapError(datamodel.ConfigError, err, "config: invalid http_body_limit %q", s)
	}

	unit := strings.ToLower(m[2])
	multiplier, ok := bodyLimitMultipliers[unit]
	if !ok {
		return 0, datamodel.NewError(datamodel.ConfigError, "config: unrecognised http_body_limit unit %q", m[2])
	}

	bytes := int64(amount * multiplier)
	if bytes > maxBodyLimitBytes {
		return 0, datamodel.NewError(datamodel.ConfigError, "config: http_body_limit %q is too big: > 128GB", s)
	}
	return bytes, nil
}
