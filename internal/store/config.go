package store

import "time"

// Config holds persistence settings
type Config struct {
	RedisURL      string
	Prefix        string
	ProfileTTL    time.Duration
	FollowsTTL    time.Duration
	QueueSize     int
	WriteTimeout  time.Duration
	MemoryMaxKeys int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Prefix:        "feed:",
		ProfileTTL:    24 * time.Hour,
		FollowsTTL:    7 * 24 * time.Hour,
		QueueSize:     256,
		WriteTimeout:  3 * time.Second,
		MemoryMaxKeys: 10000,
	}
}
