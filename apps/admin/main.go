package main

import (
	"log"
	"os"

	"github.com/unitrack/unitrack/core"
	emailsvc "github.com/unitrack/unitrack/services/email"
	identitysvc "github.com/unitrack/unitrack/services/identity"
	pgstore "github.com/unitrack/unitrack/storage/docstore/postgres"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := pgstore.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	coreLogger := core.NewStdLogger(logger)
	store := pgstore.New(db, pgstore.ConnInfo(conf), coreLogger)
	provider := identitysvc.NewProvider(store, emailsvc.NewConsoleService(*conf), conf, coreLogger)

	// start CLI
	cli := commandLine{
		db:       db,
		store:    store,
		provider: provider,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
