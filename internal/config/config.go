// Package config holds the protocol constants described in the spec's
// External Interfaces section. They are grouped into a struct, rather than
// left as bare package constants, so a test can shrink the intervals without
// perturbing every other test in the process.
package config

import "time"

// Config collects the tunables that drive the router's periodic behavior.
// DefaultConfig returns sane production values; tests typically build their
// own Config with much shorter durations.
type Config struct {
	// HelloInterval is how often a Hello packet is transmitted on every
	// interface.
	HelloInterval time.Duration

	// DeadInterval is how long a neighbor may go without a Hello before it
	// is declared down. Must be greater than HelloInterval.
	DeadInterval time.Duration

	// AgeInterval is the LSDB aging tick.
	AgeInterval time.Duration

	// LSRefreshTime is how often the local LSA is re-originated so peers
	// don't age it out. Must be less than MaxAge.
	LSRefreshTime time.Duration

	// MaxAge is the age, in the same units age is incremented by
	// (AgeInterval), at which an LSA is flushed from the LSDB.
	MaxAge uint32

	// AgeTolerance is the slack used when comparing ages of
	// same-sequence-number LSAs during LSDB merge (see lsdb.Database.Insert).
	AgeTolerance uint32

	// BandwidthBase is the numerator used to compute a link's cost:
	// cost = BandwidthBase / bandwidth.
	BandwidthBase float64

	// InitialSequenceNumber is the sequence number a freshly-originated LSA
	// starts at.
	InitialSequenceNumber uint32
}

// DefaultConfig returns the customary OSPF-like defaults: a 10s Hello, 4x
// dead interval, a 30-minute refresh, and a MaxAge of 3600 one-second aging
// ticks (one hour).
func DefaultConfig() Config {
	return Config{
		HelloInterval:         10 * time.Second,
		DeadInterval:          40 * time.Second,
		AgeInterval:           1 * time.Second,
		LSRefreshTime:         30 * time.Minute,
		MaxAge:                3600,
		AgeTolerance:          15,
		BandwidthBase:         1e8,
		InitialSequenceNumber: 1,
	}
}
