package pool

import "time"

// Config is a plain struct populated by the embedding daemon before
// calling New.
type Config struct {
	Listen           bool
	Port             uint16
	Addresses        []string
	DetectExternalIP bool
	Tor              bool
	TorPort          uint16
	Discover         bool
	DiscoverMinutes  uint32

	OurVersion           string
	MinCompatibleVersion string
	StrictReputation     bool

	StallInterval      time.Duration
	SendQueueHighWater time.Duration
	DialTimeout        time.Duration
	RetryMaxPeriod     time.Duration
}

func (c Config) withDefaults() Config {
	if c.OurVersion == "" {
		c.OurVersion = "1.0.0"
	}
	if c.StallInterval == 0 {
		c.StallInterval = 30 * time.Second
	}
	if c.SendQueueHighWater == 0 {
		c.SendQueueHighWater = 10 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.RetryMaxPeriod == 0 {
		c.RetryMaxPeriod = 7 * time.Minute
	}
	return c
}
