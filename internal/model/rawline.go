package model

import "time"

// RawLine is the intermediate type produced by sources and consumed by the miner.
type RawLine struct {
	Timestamp time.Time
	Source    string // provider name (e.g. "loki", "file")
	Text      string // original log text
}
