package main

import (
	"flag"
	"fmt"
	"time"
)

type JournalKind string

const (
	JournalNone     JournalKind = "none"
	JournalFile     JournalKind = "file"
	JournalBolt     JournalKind = "bolt"
	JournalPostgres JournalKind = "postgres"
)

type Config struct {
	Addr            string
	LogPath         string
	Journal         JournalKind
	JournalPath     string
	Postgres        PostgresDBParams
	ShutdownTimeout time.Duration
}

func parseConfig(args []string) (Config, error) {
	var (
		cfg     Config
		journal string
	)

	fs := flag.NewFlagSet("kvs", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", "0.0.0.0:8080", "Address to listen on")
	fs.StringVar(&cfg.LogPath, "log", "", "Log file path (stderr when empty)")
	fs.StringVar(&journal, "journal", string(JournalNone), "Transaction journal: none, file, bolt or postgres")
	fs.StringVar(&cfg.JournalPath, "journal-path", "", "Journal location for the file and bolt journals")
	fs.StringVar(&cfg.Postgres.host, "pg-host", "localhost", "Postgres host")
	fs.StringVar(&cfg.Postgres.dbName, "pg-dbname", "kvs", "Postgres database name")
	fs.StringVar(&cfg.Postgres.user, "pg-user", "postgres", "Postgres user")
	fs.StringVar(&cfg.Postgres.password, "pg-password", "", "Postgres password")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Journal = JournalKind(journal)
	switch cfg.Journal {
	case JournalNone, JournalPostgres:
	case JournalFile:
		if cfg.JournalPath == "" {
			cfg.JournalPath = "transaction.log"
		}
	case JournalBolt:
		if cfg.JournalPath == "" {
			cfg.JournalPath = "transaction.db"
		}
	default:
		return Config{}, fmt.Errorf("unknown journal %q", journal)
	}

	return cfg, nil
}
