package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
	"github.com/trezcool/registrar/core/catalog"
	"github.com/trezcool/registrar/core/enrollment"
	"github.com/trezcool/registrar/core/user"
	"github.com/trezcool/registrar/services/lock/redislock"
	logsvc "github.com/trezcool/registrar/services/logger"
	"github.com/trezcool/registrar/storage/database"
	sqlxrepos "github.com/trezcool/registrar/storage/database/sqlx"
)

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	conf, err := core.NewConfig()
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	zl, err := logsvc.NewZapLogger(conf.Log)
	if err != nil {
		return errors.Wrap(err, "creating logger")
	}
	defer func() { _ = zl.Sync() }()
	logger := logsvc.NewRollbarLogger(zl, conf)

	// createdb must run before the app database can be opened
	if len(os.Args) > 1 && os.Args[1] == "createdb" {
		cli := commandLine{conf: conf, out: os.Stdout, logger: logger}
		return cli.run(os.Args)
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = database.Ping(context.Background(), db); err != nil {
		return err
	}

	locker, err := newLocker(conf)
	if err != nil {
		return err
	}

	cli := newCommandLine(conf, db, locker, logger)
	return cli.run(os.Args)
}

func newLocker(conf *core.Config) (enrollment.Locker, error) {
	switch conf.Lock.Backend {
	case "", "local":
		return enrollment.NewLockArena(), nil
	case "redis":
		rdb, err := redislock.NewClient(conf.Redis)
		if err != nil {
			return nil, errors.Wrap(err, "connecting to redis")
		}
		return redislock.New(rdb, conf.Redis.LockTTL, conf.Redis.RetryInterval), nil
	default:
		return nil, errors.Errorf("unsupported lock backend %q", conf.Lock.Backend)
	}
}

func newCommandLine(conf *core.Config, db *sqlx.DB, locker enrollment.Locker, logger core.Logger) *commandLine {
	validate, translator := core.NewValidator()
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validate, translator)
	catSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db), validate, translator)
	return &commandLine{
		conf:   conf,
		db:     db.DB,
		engine: conf.Database.Engine,
		out:    os.Stdout,
		logger: logger,
		usrSvc: usrSvc,
		catSvc: catSvc,
		enrEng: enrollment.NewEngine(enrollment.Deps{
			Repo:     sqlxrepos.NewEnrollmentRepository(db),
			Catalog:  catSvc,
			Students: usrSvc,
			Locker:   locker,
			Logger:   logger,
		}),
	}
}
