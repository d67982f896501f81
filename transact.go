package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

type EventType byte

const (
	_                     = iota
	EventDelete EventType = iota
	EventPut
)

type Event struct {
	Sequence  uint64    // Unique record ID
	EventType EventType // Action taken
	Key       string    // Key affected by the transaction
	Value     string    // Value of the transaction
}

// TransactionLogger records successful mutations as an audit trail. The
// trail is never replayed into the store; ReadEvents only exists so a
// restarted logger can continue its sequence numbering.
type TransactionLogger interface {
	WriteDelete(key string)
	WritePut(key, value string)
	Err() <-chan error

	ReadEvents() (<-chan Event, <-chan error)

	Run()
	Close() error
}

// openTransactionLogger opens the journal selected by cfg, recovers its last
// sequence number and starts it.
func openTransactionLogger(cfg Config) (TransactionLogger, error) {
	var (
		logger TransactionLogger
		err    error
	)

	switch cfg.Journal {
	case JournalFile:
		logger, err = NewFileTransactionLogger(cfg.JournalPath)
	case JournalBolt:
		logger, err = NewBoltTransactionLogger(cfg.JournalPath)
	case JournalPostgres:
		logger, err = NewPostgresTransactionLogger(cfg.Postgres)
	default:
		logger = nopTransactionLogger{}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create event logger: %w", err)
	}

	count, err := drainEvents(logger)
	if err != nil {
		logger.Close()
		return nil, err
	}
	if count > 0 {
		Infof("Journal holds %d earlier events", count)
	}

	logger.Run()

	return logger, nil
}

// drainEvents reads the whole journal, leaving the logger positioned after
// the last sequence number.
func drainEvents(logger TransactionLogger) (int, error) {
	events, errs := logger.ReadEvents()

	count := 0
	for events != nil || errs != nil {
		select {
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			count++
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return count, err
		}
	}

	return count, nil
}

type nopTransactionLogger struct{}

func (nopTransactionLogger) WritePut(key, value string) {}
func (nopTransactionLogger) WriteDelete(key string)     {}
func (nopTransactionLogger) Err() <-chan error          { return nil }
func (nopTransactionLogger) Run()                       {}
func (nopTransactionLogger) Close() error               { return nil }

func (nopTransactionLogger) ReadEvents() (<-chan Event, <-chan error) {
	outEvent := make(chan Event)
	outError := make(chan error)
	close(outEvent)
	close(outError)
	return outEvent, outError
}

type FileTransactionLogger struct {
	events       chan<- Event // Write-only channel for sending events
	errors       <-chan error // Read-only channel for receiving errors
	lastSequence uint64       // Last used event sequence number
	file         *os.File     // Transaction log location
	wg           sync.WaitGroup
}

func (l *FileTransactionLogger) WritePut(key, value string) {
	l.events <- Event{EventType: EventPut, Key: key, Value: value}
}

func (l *FileTransactionLogger) WriteDelete(key string) {
	l.events <- Event{EventType: EventDelete, Key: key}
}

func (l *FileTransactionLogger) Err() <-chan error {
	return l.errors
}

func NewFileTransactionLogger(filename string) (*FileTransactionLogger, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open transaction log file: %w", err)
	}

	return &FileTransactionLogger{file: file}, nil
}

func (l *FileTransactionLogger) Run() {
	events := make(chan Event, 16)
	l.events = events

	errors := make(chan error, 1) // Buffered so a single failure never blocks the writer
	l.errors = errors

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		// After the first failure events are still drained so writers never
		// block, but nothing more reaches the file.
		var failed bool
		fail := func(err error) {
			failed = true
			errors <- err
		}

		w := bufio.NewWriter(l.file)
		for e := range events {
			if failed {
				continue
			}

			l.lastSequence++
			e.Sequence = l.lastSequence

			if _, err := w.WriteString(formatEvent(e)); err != nil {
				fail(err)
				continue
			}
			if len(events) == 0 {
				if err := w.Flush(); err != nil {
					fail(err)
				}
			}
		}
		if !failed {
			if err := w.Flush(); err != nil {
				fail(err)
			}
		}
	}()
}

// Close stops accepting events, waits for pending ones to be written and
// closes the file.
func (l *FileTransactionLogger) Close() error {
	if l.events != nil {
		close(l.events)
		l.wg.Wait()
		l.events = nil
	}
	return l.file.Close()
}

func (l *FileTransactionLogger) ReadEvents() (<-chan Event, <-chan error) {
	scanner := bufio.NewScanner(l.file)
	outEvent := make(chan Event)    // An unbuffered Event channel
	outError := make(chan error, 1) // A buffered error channel

	go func() {
		defer close(outEvent)
		defer close(outError)

		for scanner.Scan() {
			e, err := parseEvent(scanner.Text())
			if err != nil {
				outError <- fmt.Errorf("input parse error: %w", err)
				return
			}

			if l.lastSequence >= e.Sequence {
				outError <- fmt.Errorf("transaction numbers out of sequence")
				return
			}

			l.lastSequence = e.Sequence

			outEvent <- e
		}
		if err := scanner.Err(); err != nil {
			outError <- fmt.Errorf("transaction log read failure: %w", err)
		}
	}()

	return outEvent, outError
}

// Keys and values are Go-quoted so tabs and newlines cannot break a line.
func formatEvent(e Event) string {
	return fmt.Sprintf("%d\t%d\t%s\t%s\n",
		e.Sequence, e.EventType, strconv.Quote(e.Key), strconv.Quote(e.Value))
}

func parseEvent(line string) (Event, error) {
	var e Event

	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return e, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	seq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return e, fmt.Errorf("bad sequence: %w", err)
	}
	typ, err := strconv.ParseUint(fields[1], 10, 8)
	if err != nil {
		return e, fmt.Errorf("bad event type: %w", err)
	}
	key, err := strconv.Unquote(fields[2])
	if err != nil {
		return e, fmt.Errorf("bad key: %w", err)
	}
	value, err := strconv.Unquote(fields[3])
	if err != nil {
		return e, fmt.Errorf("bad value: %w", err)
	}

	e.Sequence = seq
	e.EventType = EventType(typ)
	e.Key = key
	e.Value = value

	switch e.EventType {
	case EventPut, EventDelete:
	default:
		return e, fmt.Errorf("unknown event type %d", typ)
	}

	return e, nil
}
