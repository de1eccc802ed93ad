package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/services/audit"
	"github.com/pan-thu/lets-talk-sub000/services/email"
	"github.com/pan-thu/lets-talk-sub000/services/logger"
	"github.com/pan-thu/lets-talk-sub000/services/metrics"
	"github.com/pan-thu/lets-talk-sub000/storage/database"
	"github.com/pan-thu/lets-talk-sub000/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stdout, conf).Named("admin")
	logger.Enable(!conf.Debug)
	core.ParseEmailTemplates(logger)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	migrator, err := database.NewMigrator(db)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading migrations: %v", err), err)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// start CLI
	validate := core.NewValidator(core.NewTranslator())
	courseRepo := sqlxrepos.NewCourseRepository(db)
	cli := commandLine{
		out:       os.Stdout,
		in:        os.Stdin,
		migrator:  migrator,
		courseSvc: course.NewService(courseRepo, validate, core.SystemClock),
		enrSvc: enrollment.NewService(
			db, sqlxrepos.NewEnrollmentRepository(db), courseRepo, validate, mailSvc,
			auditsvc.NewLoggerSink(logger), logger, metricsvc.NewPrometheus(prometheus.NewRegistry(), "masomo"),
			core.SystemClock, conf,
		),
	}
	if err := cli.run(context.Background(), os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
