package main

import (
	"os"

	"github.com/meltwater/hbase-scripts/cmd"
	"github.com/meltwater/hbase-scripts/utils/log"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error("%v", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}
