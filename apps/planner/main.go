package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/core/auth"
	"github.com/unitrack/unitrack/core/course"
	"github.com/unitrack/unitrack/core/session"
	"github.com/unitrack/unitrack/core/task"
	emailsvc "github.com/unitrack/unitrack/services/email"
	feedssvc "github.com/unitrack/unitrack/services/feeds"
	identitysvc "github.com/unitrack/unitrack/services/identity"
	logsvc "github.com/unitrack/unitrack/services/logger"
	"github.com/unitrack/unitrack/storage/docstore/postgres"
	"github.com/unitrack/unitrack/storage/prefs"
	"github.com/unitrack/unitrack/viewmodel"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "PLANNER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		*conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		*conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	store := pgstore.New(db, pgstore.ConnInfo(conf), dbLogger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(*conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(*conf, logger)
	}
	provider := identitysvc.NewProvider(store, mailSvc, conf, logger)

	holidaySvc := feedssvc.NewHolidayService(*conf, logger)
	quoteSvc := feedssvc.NewQuoteService(*conf, logger)
	prefStore := prefs.NewStore(conf.PrefsPath)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.InitValidators()

	authMgr := auth.NewManager(provider, store, logger)
	defer authMgr.Close()

	courseRepo := course.NewRepository(store, logger)
	sessionRepo := session.NewRepository(store, logger)
	taskRepo := task.NewRepository(store, logger)

	queue := viewmodel.NewQueue()
	defer queue.Close()

	courseVM := viewmodel.NewCourseViewModel(queue, courseRepo, sessionRepo, provider, logger)
	taskVM := viewmodel.NewTaskViewModel(queue, taskRepo, logger)
	holidayVM := viewmodel.NewHolidaySummaryViewModel(queue, holidaySvc)
	defer courseVM.Close()
	defer taskVM.Close()

	ctx := context.Background()
	holidayVM.Load(ctx)
	if quote := quoteSvc.Today(ctx); quote.Text != "" {
		logger.Info(fmt.Sprintf("Quote of the day: %q - %s", quote.Text, quote.Author))
	}
	if p, err := prefStore.Load(); err == nil && p.FocusTotalMinutes > 0 {
		logger.Info(fmt.Sprintf("Focus time so far: %d min (preferred mode: %s)", p.FocusTotalMinutes, p.PreferredMode))
	}

	// =========================================================================
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := pgstore.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := pgstore.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = pgstore.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
