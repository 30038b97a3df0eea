// Command evalctl administers the evaluation service's stores: schema
// migration, catalog seeding, reviewer accounts and offline checklist builds.
package main

import (
	"os"

	"github.com/chedeval/progeval/pkg/logger"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
