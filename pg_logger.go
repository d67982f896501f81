package main

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
)

type PostgresDBParams struct {
	dbName   string
	host     string
	user     string
	password string
}

func (p PostgresDBParams) connString() string {
	s := fmt.Sprintf("host=%s dbname=%s user=%s sslmode=disable", p.host, p.dbName, p.user)
	if p.password != "" {
		s += " password=" + p.password
	}
	return s
}

type PostgresTransactionLogger struct {
	events chan<- Event // Write-only channel for sending events
	errors <-chan error // Read-only channel for receiving errors
	db     *sql.DB      // Database access interface
	wg     sync.WaitGroup
}

func (l *PostgresTransactionLogger) WritePut(key, value string) {
	l.events <- Event{EventType: EventPut, Key: key, Value: value}
}

func (l *PostgresTransactionLogger) WriteDelete(key string) {
	l.events <- Event{EventType: EventDelete, Key: key}
}

func (l *PostgresTransactionLogger) Err() <-chan error {
	return l.errors
}

func (l *PostgresTransactionLogger) verifyTableExists() (bool, error) {
	const table = "transactions"
	var result sql.NullString

	rows, err := l.db.Query(fmt.Sprintf("SELECT to_regclass('public.%s');", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() && result.String != table {
		if err := rows.Scan(&result); err != nil {
			return false, err
		}
	}

	return result.String == table, rows.Err()
}

func (l *PostgresTransactionLogger) createTable() error {
	query := `CREATE TABLE transactions (
			sequence 	BIGSERIAL PRIMARY KEY,
			event_type 	SMALLINT,
			key 		TEXT,
			value 		TEXT
			);`

	if _, err := l.db.Exec(query); err != nil {
		return err
	}

	return nil
}

func NewPostgresTransactionLogger(config PostgresDBParams) (*PostgresTransactionLogger, error) {
	db, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	logger := &PostgresTransactionLogger{db: db}

	exists, err := logger.verifyTableExists()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify table exists: %w", err)
	}

	if !exists {
		if err = logger.createTable(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed create table: %w", err)
		}
	}

	return logger, nil
}

func (l *PostgresTransactionLogger) Run() {
	events := make(chan Event, 16)
	l.events = events

	errors := make(chan error, 1)
	l.errors = errors

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		query := `INSERT INTO transactions
						(event_type, key, value)
						VALUES ($1, $2, $3)`

		var failed bool
		for e := range events {
			if failed {
				continue
			}
			if _, err := l.db.Exec(query, e.EventType, e.Key, e.Value); err != nil {
				failed = true
				errors <- err
			}
		}
	}()
}

func (l *PostgresTransactionLogger) Close() error {
	if l.events != nil {
		close(l.events)
		l.wg.Wait()
		l.events = nil
	}
	return l.db.Close()
}

func (l *PostgresTransactionLogger) ReadEvents() (<-chan Event, <-chan error) {
	outEvent := make(chan Event)    // An unbuffered Event channel
	outError := make(chan error, 1) // A buffered error channel

	go func() {
		defer close(outEvent)
		defer close(outError)

		query := `SELECT sequence, event_type, key, value
				  FROM transactions
				  ORDER BY sequence`

		rows, err := l.db.Query(query)
		if err != nil {
			outError <- fmt.Errorf("sql query error: %w", err)
			return
		}

		defer rows.Close()

		e := Event{}

		for rows.Next() {
			err = rows.Scan(
				&e.Sequence, &e.EventType,
				&e.Key, &e.Value)

			if err != nil {
				outError <- fmt.Errorf("error reading row: %w", err)
				return
			}

			outEvent <- e
		}

		if err := rows.Err(); err != nil {
			outError <- fmt.Errorf("transaction log read failure: %w", err)
		}
	}()

	return outEvent, outError
}
