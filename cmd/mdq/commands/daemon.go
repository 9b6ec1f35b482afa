package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helicase/mdq/config"
	"github.com/helicase/mdq/logger"
	"github.com/helicase/mdq/reconcile"
)

// DaemonCmd runs the periodic sync loop in the foreground.
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync loop in the foreground",
	Long: `Run periodic reconciliation until interrupted.

The sync interval comes from sync.interval_minutes in the config file and
can be changed while the daemon runs; the config file is watched and the
ticker picks up the new interval without a restart. An interval of zero
pauses automatic syncing.

Example:
  mdq daemon`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Sync.IntervalMinutes <= 0 {
			fmt.Println("sync.interval_minutes is 0; daemon will idle until the config sets an interval")
		}

		ticker := reconcile.NewTicker(a.rec, a.cfg.Sync.IntervalMinutes)
		ticker.Start()

		watcher, err := config.NewWatcher(config.Path())
		if err != nil {
			// No config file to watch is fine; the daemon just loses hot
			// reload.
			logger.Logger.Debugw("Config watching disabled", "error", err)
		} else {
			watcher.OnReload(func(cfg *config.Config) error {
				ticker.SetInterval(cfg.Sync.IntervalMinutes)
				return nil
			})
			watcher.Start()
			defer watcher.Close()
		}

		fmt.Printf("mdq daemon started (interval: %dm, db: %s)\n",
			a.cfg.Sync.IntervalMinutes, a.cfg.Database.Path)
		fmt.Println("Press Ctrl+C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nShutting down...")
		ticker.Stop()
		fmt.Printf("mdq daemon stopped after %d pass(es)\n", ticker.Passes())
		return nil
	},
}
