package rrdcached

import (
	"fmt"
	"strings"
)

// Preset selects a round-robin archive layout for newly created RRD
// files, ported from the reference implementation's Preset enum
// (original_source/src/storage/rrdcached/mod.rs) with the archive
// definitions rendered as rrdcached's own "RRA:CF:xff:steps:rows"
// clauses instead of a client-library struct.
type Preset int

const (
	// Hoarder keeps fine-grained history for a long time: 10s
	// resolution for a day, ramping down to daily points for 10
	// years. This is the default preset.
	Hoarder Preset = iota
	// Munin mirrors Munin's classic RRA layout: 5-minute steps for
	// 600 entries down to daily steps for 797 entries.
	Munin
)

// ParsePreset maps a connection-string "preset" query value to a
// Preset, case-insensitively, matching the reference implementation's
// FromStr.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(s) {
	case "munin":
		return Munin, nil
	case "hoarder":
		return Hoarder, nil
	default:
		return 0, fmt.Errorf("invalid rrdcached preset %q", s)
	}
}

// roundRobinArchives renders the RRA clauses for p.
func (p Preset) roundRobinArchives() []string {
	switch p {
	case Munin:
		return []string{
			rra(0.5, 30, 600),
			rra(0.5, 180, 700),
			rra(0.5, 720, 775),
			rra(0.5, 8640, 797),
		}
	default: // Hoarder
		return []string{
			rra(0.5, 1, 8640),
			rra(0.5, 6, 2880),
			rra(0.5, 60, 1008),
			rra(0.5, 360, 8760),
			rra(0.5, 8640, 3650),
		}
	}
}

func rra(xff float64, steps, rows int) string {
	return fmt.Sprintf("RRA:AVERAGE:%g:%d:%d", xff, steps, rows)
}
