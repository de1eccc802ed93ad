package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

type migrator interface {
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
	UpTo(ctx context.Context, version int64) ([]*goose.MigrationResult, error)
	Down(ctx context.Context) (*goose.MigrationResult, error)
	DownTo(ctx context.Context, version int64) ([]*goose.MigrationResult, error)
	Status(ctx context.Context) ([]*goose.MigrationStatus, error)
	GetDBVersion(ctx context.Context) (int64, error)
}

var _ migrator = (*goose.Provider)(nil)

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	parseVersion := func() (int64, error) {
		if len(args) < 2 {
			return 0, fmt.Errorf("%s must be of form: migrate %s VERSION", args[0], args[0])
		}
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("version must be a number (got '%s')", args[1])
		}
		return v, nil
	}

	var (
		results []*goose.MigrationResult
		err     error
	)
	switch args[0] {
	case "up":
		results, err = cli.migrator.Up(ctx)
	case "up-to":
		var v int64
		if v, err = parseVersion(); err != nil {
			return err
		}
		results, err = cli.migrator.UpTo(ctx, v)
	case "down":
		var res *goose.MigrationResult
		if res, err = cli.migrator.Down(ctx); res != nil {
			results = append(results, res)
		}
	case "down-to":
		var v int64
		if v, err = parseVersion(); err != nil {
			return err
		}
		results, err = cli.migrator.DownTo(ctx, v)
	case "status":
		statuses, err := cli.migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			fmt.Fprintf(cli.out, "%-8s %05d %s\n", st.State, st.Source.Version, st.Source.Path)
		}
		return nil
	case "version":
		v, err := cli.migrator.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "version %d\n", v)
		return nil
	default:
		return fmt.Errorf("%q: no such command", args[0])
	}

	for _, res := range results {
		fmt.Fprintln(cli.out, res.String())
	}
	if len(results) == 0 && err == nil {
		fmt.Fprintln(cli.out, "no migrations to run")
	}
	return err
}
