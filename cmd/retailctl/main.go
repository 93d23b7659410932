// Command retailctl is the operator CLI: it writes the config file, provisions
// the BigQuery dataset and renders analytics reports.
package main

import (
	"os"

	"github.com/ridloal/retail-analytics-engine/internal/platform/logger"
)

func main() {
	defer logger.Sync()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
