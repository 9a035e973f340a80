package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/academia/apps/shared"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database"
	logsvc "github.com/trezcool/academia/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(false)

	stores, err := shared.OpenStores(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	validate, _ := shared.NewValidator()

	cli := commandLine{
		usrSvc:         shared.NewServices(conf, stores, logger).Users,
		validate:       validate,
		maxOccurrences: conf.Recurrence.MaxOccurrences,
		out:            os.Stdout,
	}
	if db := stores.SQL(); db != nil {
		cli.migrator = database.NewMigrator(db)
	}
	err = cli.run(os.Args)
	if cerr := stores.Close(); cerr != nil {
		logger.Error("failed to close database", cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
