// Package config loads mdq configuration from TOML and the environment.
package config

// Config represents the core mdq configuration
type Config struct {
	Database Database `mapstructure:"database"`
	Gateway  Gateway  `mapstructure:"gateway"`
	Sync     Sync     `mapstructure:"sync"`
	Advisory Advisory `mapstructure:"advisory"`
}

// Database configures the local SQLite job store
type Database struct {
	Path string `mapstructure:"path"`
}

// Gateway configures how scheduler commands are issued
type Gateway struct {
	// Account to submit under; empty means the scheduler default
	Account string `mapstructure:"account"`
	// Timeout in seconds for a single scheduler command
	CommandTimeoutSeconds int `mapstructure:"command_timeout_seconds"`
	// Max scheduler commands per minute (sync passes share this budget)
	MaxCallsPerMinute int `mapstructure:"max_calls_per_minute"`
}

// Sync configures the reconciliation loop
type Sync struct {
	// IntervalMinutes between automatic sync passes; 0 = manual only
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// Advisory holds tunable thresholds behind the validator's non-blocking
// warnings and suggestions. These are advisory policy, not hard limits,
// which is why they live in config rather than the partition tables.
type Advisory struct {
	// Core count below which a queue-latency warning is emitted
	SmallJobCores int `mapstructure:"small_job_cores"`
	// GB per core used by the memory-request heuristic
	MemPerCoreGB float64 `mapstructure:"mem_per_core_gb"`
	// Walltime hours above which the long-running QoS is suggested
	LongQosHours float64 `mapstructure:"long_qos_hours"`
}
