package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultDatabaseFile is the job store filename under the config directory
const DefaultDatabaseFile = "mdq.db"

// SetDefaults applies default configuration values to a Viper instance
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(configDir(), DefaultDatabaseFile))

	v.SetDefault("gateway.account", "")
	v.SetDefault("gateway.command_timeout_seconds", 30)
	v.SetDefault("gateway.max_calls_per_minute", 60)

	// Automatic sync is off until the user opts in
	v.SetDefault("sync.interval_minutes", 0)

	// Advisory thresholds behind warnings and suggestions; user-tunable
	v.SetDefault("advisory.small_job_cores", 16)
	v.SetDefault("advisory.mem_per_core_gb", 2.0)
	v.SetDefault("advisory.long_qos_hours", 48.0)
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mdq"
	}
	return filepath.Join(home, ".mdq")
}
