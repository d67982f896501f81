package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostgresConnString(t *testing.T) {
	p := PostgresDBParams{host: "db", dbName: "kvs", user: "app"}
	assert.Equal(t, "host=db dbname=kvs user=app sslmode=disable", p.connString())

	p.password = "secret"
	assert.Equal(t, "host=db dbname=kvs user=app sslmode=disable password=secret", p.connString())
}

func TestPostgresTransactionLoggerUnreachable(t *testing.T) {
	// Port 1 on localhost refuses connections, so Ping fails fast.
	_, err := NewPostgresTransactionLogger(PostgresDBParams{host: "127.0.0.1 port=1", dbName: "kvs", user: "app"})
	assert.ErrorContains(t, err, "failed to open db connection")
}
