package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"toolgate.org/internal/migrate"
)

func main() {
	var (
		dsn           = flag.String("dsn", os.Getenv("TOOLGATE_PG_DSN"), "postgres DSN (defaults to TOOLGATE_PG_DSN)")
		migrationsDir = flag.String("migrations", "migrations", "directory with *.up.sql / *.down.sql files")
		seedsDir      = flag.String("seeds", "seeds", "directory with seed *.sql files")
	)
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up|down|seed|status")
		os.Exit(2)
	}
	if *dsn == "" {
		log.Fatal("no DSN: set -dsn or TOOLGATE_PG_DSN")
	}

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mgr := migrate.NewManager(db, *migrationsDir, *seedsDir)

	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			if len(history) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, name := range history {
				fmt.Println(name)
			}
		}
	default:
		log.Fatalf("unknown command %q (want up|down|seed|status)", cmd)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
	log.Printf("%s: ok", cmd)
}
