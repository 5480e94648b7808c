package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/db"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the set built into the binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(migrate.Source(*dir)); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Release:     cfg.App.Release,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(logg, "sql database", err)

	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir))
	requireResource(logg, "migration source", err)

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			fail("%v", err)
		}
		logg.Info(logg.WithField(ctx, "applied", len(applied)), "migrations applied")
	case "down":
		rolledBack, err := runner.Down(ctx)
		if err != nil {
			fail("%v", err)
		}
		logg.Info(logg.WithField(ctx, "version", rolledBack), "migration rolled back")
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			fail("%v", err)
		}
		printStatus(states)
	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
		if err := runner.MigrateTo(ctx, *version); err != nil {
			fail("%v", err)
		}
		logg.Info(logg.WithField(ctx, "version", *version), "schema migrated to version")
	default:
		fail("unknown -cmd value: %s", *cmd)
	}
}

func printStatus(states []migrate.MigrationState) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
	for _, st := range states {
		fmt.Fprintf(w, "%d\t%t\t%s\n", st.Version, st.Applied, st.Path)
	}
	w.Flush()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
