package fakedb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// ErrConnClosed is returned by every call on a closed or killed Conn.
var ErrConnClosed = errors.New("conn closed")

// Conn is a fake dbapi.Conn answering from a Script.
type Conn struct {
	ID     int
	script *Script
	closed atomic.Bool
	closes atomic.Int32
}

// NewConn creates a standalone Conn.
func NewConn(id int, script *Script) *Conn {
	return &Conn{ID: id, script: script}
}

// Kill simulates the server dropping the connection.
func (c *Conn) Kill() { c.closed.Store(true) }

// Closes reports how many times Close was called.
func (c *Conn) Closes() int { return int(c.closes.Load()) }

func (c *Conn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if c.closed.Load() {
		return pgconn.CommandTag{}, ErrConnClosed
	}
	_, tag, err := c.script.answer(c.ID, sql, args)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag(tag), nil
}

func (c *Conn) Query(_ context.Context, sql string, args ...any) (dbapi.Rows, error) {
	if c.closed.Load() {
		return nil, ErrConnClosed
	}
	rows, _, err := c.script.answer(c.ID, sql, args)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows, pos: -1}, nil
}

func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) dbapi.Row {
	rows, err := c.Query(ctx, sql, args...)
	if err != nil {
		return errRow{err}
	}
	return &singleRow{rows: rows.(*Rows)}
}

func (c *Conn) Begin(ctx context.Context) (dbapi.Tx, error) {
	if _, err := c.Exec(ctx, "BEGIN"); err != nil {
		return nil, err
	}
	return &Tx{conn: c}, nil
}

func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.Exec(ctx, "-- ping")
	return err
}

func (c *Conn) IsClosed() bool { return c.closed.Load() }

func (c *Conn) Close(context.Context) error {
	c.closes.Add(1)
	c.closed.Store(true)
	return nil
}

// Tx records BEGIN/COMMIT/ROLLBACK around the statements issued through it.
type Tx struct {
	conn *Conn
	mu   sync.Mutex
	done bool
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.conn.Exec(ctx, sql, args...)
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (dbapi.Rows, error) {
	return t.conn.Query(ctx, sql, args...)
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) dbapi.Row {
	return t.conn.QueryRow(ctx, sql, args...)
}

func (t *Tx) Commit(ctx context.Context) error {
	return t.finish(ctx, "COMMIT")
}

func (t *Tx) Rollback(ctx context.Context) error {
	return t.finish(ctx, "ROLLBACK")
}

func (t *Tx) finish(ctx context.Context, stmt string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	_, err := t.conn.Exec(ctx, stmt)
	return err
}

// Rows iterates scripted rows.
type Rows struct {
	rows   [][]any
	pos    int
	closed bool
}

func (r *Rows) Next() bool {
	if r.closed || r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.rows) {
		return errors.New("fakedb: Scan called without a current row")
	}
	return scanInto(r.rows[r.pos], dest)
}

func (r *Rows) Err() error { return nil }

func (r *Rows) Close() { r.closed = true }

type singleRow struct {
	rows *Rows
}

func (r *singleRow) Scan(dest ...any) error {
	defer r.rows.Close()
	if !r.rows.Next() {
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("fakedb: row has %d values, Scan got %d destinations", len(values), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("fakedb: destination %d is not a non-nil pointer", i)
		}
		target := dv.Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		switch {
		case v.Type().AssignableTo(target.Type()):
			target.Set(v)
		case v.Type().ConvertibleTo(target.Type()):
			target.Set(v.Convert(target.Type()))
		default:
			return fmt.Errorf("fakedb: cannot scan %T into %s", values[i], target.Type())
		}
	}
	return nil
}

var (
	_ dbapi.Conn = (*Conn)(nil)
	_ dbapi.Tx   = (*Tx)(nil)
	_ dbapi.Rows = (*Rows)(nil)
)
