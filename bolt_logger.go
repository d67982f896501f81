package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var transactionsBucket = []byte("transactions")

// boltRecord is the value stored under each sequence key.
type boltRecord struct {
	EventType EventType `json:"type"`
	Key       string    `json:"key"`
	Value     string    `json:"value,omitempty"`
}

// BoltTransactionLogger keeps the journal in a bbolt bucket keyed by the
// big-endian sequence number, so cursor order is sequence order.
type BoltTransactionLogger struct {
	events chan<- Event
	errors <-chan error
	db     *bolt.DB
	wg     sync.WaitGroup
}

func NewBoltTransactionLogger(path string) (*BoltTransactionLogger, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cannot open bolt journal: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transactionsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cannot create journal bucket: %w", err)
	}

	return &BoltTransactionLogger{db: db}, nil
}

func (l *BoltTransactionLogger) WritePut(key, value string) {
	l.events <- Event{EventType: EventPut, Key: key, Value: value}
}

func (l *BoltTransactionLogger) WriteDelete(key string) {
	l.events <- Event{EventType: EventDelete, Key: key}
}

func (l *BoltTransactionLogger) Err() <-chan error {
	return l.errors
}

func (l *BoltTransactionLogger) Run() {
	events := make(chan Event, 16)
	l.events = events

	errors := make(chan error, 1)
	l.errors = errors

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		var failed bool
		for e := range events {
			if failed {
				continue
			}
			if err := l.append(e); err != nil {
				failed = true
				errors <- err
			}
		}
	}()
}

func (l *BoltTransactionLogger) append(e Event) error {
	data, err := json.Marshal(boltRecord{EventType: e.EventType, Key: e.Key, Value: e.Value})
	if err != nil {
		return err
	}

	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(transactionsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

func (l *BoltTransactionLogger) Close() error {
	if l.events != nil {
		close(l.events)
		l.wg.Wait()
		l.events = nil
	}
	return l.db.Close()
}

func (l *BoltTransactionLogger) ReadEvents() (<-chan Event, <-chan error) {
	outEvent := make(chan Event)
	outError := make(chan error, 1)

	go func() {
		defer close(outEvent)
		defer close(outError)

		// Events are collected first so the read transaction is not held
		// while the consumer is slow.
		var events []Event
		err := l.db.View(func(tx *bolt.Tx) error {
			return tx.Bucket(transactionsBucket).ForEach(func(k, v []byte) error {
				if len(k) != 8 {
					return fmt.Errorf("malformed sequence key %x", k)
				}
				var rec boltRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("error reading record %d: %w", binary.BigEndian.Uint64(k), err)
				}
				events = append(events, Event{
					Sequence:  binary.BigEndian.Uint64(k),
					EventType: rec.EventType,
					Key:       rec.Key,
					Value:     rec.Value,
				})
				return nil
			})
		})
		if err != nil {
			outError <- fmt.Errorf("transaction log read failure: %w", err)
			return
		}

		for _, e := range events {
			outEvent <- e
		}
	}()

	return outEvent, outError
}

func sequenceKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
