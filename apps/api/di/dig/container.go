package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	echoapi "github.com/pan-thu/lets-talk-sub000/apps/api/echo"
	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/audit"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/core/livesession"
	auditsvc "github.com/pan-thu/lets-talk-sub000/services/audit"
	emailsvc "github.com/pan-thu/lets-talk-sub000/services/email"
	logsvc "github.com/pan-thu/lets-talk-sub000/services/logger"
	metricsvc "github.com/pan-thu/lets-talk-sub000/services/metrics"
	stripesvc "github.com/pan-thu/lets-talk-sub000/services/payment/stripe"
	"github.com/pan-thu/lets-talk-sub000/storage/database"
	sqlxrepos "github.com/pan-thu/lets-talk-sub000/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type ServerParams struct {
	dig.In
	Conf           *core.Config
	Logger         core.Logger
	Translator     ut.Translator
	EnrollmentSvc  *enrollment.Service
	LiveSessionSvc *livesession.Service
	WebhookParser  *stripesvc.WebhookParser
	Registry       *prometheus.Registry
	Shutdown       chan os.Signal
}

func newRootLogger(conf *core.Config) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(os.Stdout, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newLogger(root *logsvc.RollbarLogger) core.Logger {
	return root.Named("api")
}

func newDBLogger(root *logsvc.RollbarLogger) core.Logger {
	return root.Named("db")
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newAuditSink(conf *core.Config, logger core.Logger) audit.Sink {
	sinks := []audit.Sink{auditsvc.NewLoggerSink(logger)}
	if conf.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		sinks = append(sinks, auditsvc.NewRedisSink(client, conf.Redis.AuditChannel, logger))
	}
	return auditsvc.Fanout(sinks...)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) core.Metrics {
	return metricsvc.NewPrometheus(reg, "masomo")
}

func newShutdownChannel() chan os.Signal {
	return make(chan os.Signal, 1)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(p.Conf.Server.Address, p.Shutdown, &echoapi.Deps{
		Conf:           p.Conf,
		Logger:         p.Logger,
		Translator:     p.Translator,
		EnrollmentSvc:  p.EnrollmentSvc,
		LiveSessionSvc: p.LiveSessionSvc,
		WebhookParser:  p.WebhookParser,
		Gatherer:       p.Registry,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newRootLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newAuditSink))
	must(c.Provide(newRegistry))
	must(c.Provide(newMetrics))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(core.NewValidator))
	must(c.Provide(func() core.Clock { return core.SystemClock }))
	must(c.Provide(sqlxrepos.NewCourseRepository, dig.As(new(course.Repository))))
	must(c.Provide(sqlxrepos.NewEnrollmentRepository, dig.As(new(enrollment.Repository))))
	must(c.Provide(sqlxrepos.NewLiveSessionRepository, dig.As(new(livesession.Repository))))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(func(svc *enrollment.Service) livesession.AccessChecker { return svc }))
	must(c.Provide(livesession.NewService))
	must(c.Provide(stripesvc.NewWebhookParser))
	must(c.Provide(newShutdownChannel))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
