// Package fakedb provides in-memory implementations of the dbapi connection
// contracts for unit tests. Statements are answered by a shared Script of
// substring-matched rules and recorded for later assertions.
package fakedb

import (
	"strings"
	"sync"
)

// Statement is one recorded call.
type Statement struct {
	ConnID int
	SQL    string
	Args   []any
}

// Rule answers statements whose SQL contains Match.
type Rule struct {
	match     string
	columns   []string
	rows      [][]any
	tag       string
	err       error
	remaining int
}

// Return sets the rows produced by a matching query.
func (r *Rule) Return(rows ...[]any) *Rule {
	r.rows = rows
	return r
}

// Columns documents the column order of Return rows. Informational only.
func (r *Rule) Columns(names ...string) *Rule {
	r.columns = names
	return r
}

// Tag sets the command tag returned by a matching Exec.
func (r *Rule) Tag(tag string) *Rule {
	r.tag = tag
	return r
}

// Fail makes matching statements return err.
func (r *Rule) Fail(err error) *Rule {
	r.err = err
	return r
}

// Times limits the rule to n matches; it is skipped afterwards.
func (r *Rule) Times(n int) *Rule {
	r.remaining = n
	return r
}

// Once is Times(1).
func (r *Rule) Once() *Rule {
	return r.Times(1)
}

// Script is a concurrency-safe list of rules and a log of executed statements.
// Rules are consulted in registration order.
type Script struct {
	mu    sync.Mutex
	rules []*Rule
	log   []Statement
}

// NewScript returns an empty script. Unmatched queries return no rows and
// unmatched execs return an empty tag.
func NewScript() *Script {
	return &Script{}
}

// On registers a rule for statements containing match.
func (s *Script) On(match string) *Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Rule{match: match, remaining: -1}
	s.rules = append(s.rules, r)
	return r
}

// Log returns a copy of every recorded statement.
func (s *Script) Log() []Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Statement, len(s.log))
	copy(out, s.log)
	return out
}

// Executed reports how many recorded statements contain fragment.
func (s *Script) Executed(fragment string) int {
	n := 0
	for _, st := range s.Log() {
		if strings.Contains(st.SQL, fragment) {
			n++
		}
	}
	return n
}

func (s *Script) answer(connID int, sql string, args []any) (rows [][]any, tag string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, Statement{ConnID: connID, SQL: sql, Args: args})
	for _, r := range s.rules {
		if r.remaining == 0 || !strings.Contains(sql, r.match) {
			continue
		}
		if r.remaining > 0 {
			r.remaining--
		}
		return r.rows, r.tag, r.err
	}
	return nil, "", nil
}
