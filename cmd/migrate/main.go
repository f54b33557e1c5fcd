// Command migrate applies the embedded schema and seed files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"rcsa.id/internal/config"
	"rcsa.id/internal/migrate"
	"rcsa.id/internal/obs"
	"rcsa.id/internal/store/pg"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (default: built from DB_* settings)")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] up|down|seed|status\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	log := obs.Logger()

	if *dsn == "" {
		db, err := config.LoadDB()
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
		*dsn = db.DSN()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, pg.Pool{MaxOpen: 1})
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), pg.Migrations(), pg.Seeds())

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		if applied, err = mgr.Up(ctx); err == nil {
			log.Info().Int("applied", len(applied)).Msg("migrations up to date")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Println(name)
		}
	case "seed":
		var applied []string
		if applied, err = mgr.Seed(ctx); err == nil {
			log.Info().Int("applied", len(applied)).Msg("seeds up to date")
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, name := range history {
			fmt.Println(name)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		store.Close()
		log.Fatal().Err(err).Str("command", cmd).Msg("migrate failed")
	}
}
