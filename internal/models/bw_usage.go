package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgdbapi/internal/schema"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// BwUsageUpdate is one bandwidth sample for an instance interface.
type BwUsageUpdate struct {
	UUID        string    `json:"uuid"`
	MAC         string    `json:"mac"`
	StartPeriod time.Time `json:"start_period"`
	BwIn        int64     `json:"bw_in"`
	BwOut       int64     `json:"bw_out"`
	LastCtrIn   int64     `json:"last_ctr_in"`
	LastCtrOut  int64     `json:"last_ctr_out"`
	// LastRefreshed defaults to the current UTC time.
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
}

// Validate checks the identifying fields.
func (u BwUsageUpdate) Validate() error {
	var errs []error
	if u.UUID == "" {
		errs = append(errs, errors.New("uuid is required"))
	}
	if u.MAC == "" {
		errs = append(errs, errors.New("mac is required"))
	}
	if u.StartPeriod.IsZero() {
		errs = append(errs, errors.New("start_period is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", dbapi.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

// BandwidthUsage is a stored bandwidth cache row.
type BandwidthUsage struct {
	ID            int64     `json:"id"`
	UUID          string    `json:"uuid"`
	MAC           string    `json:"mac"`
	StartPeriod   time.Time `json:"start_period"`
	BwIn          int64     `json:"bw_in"`
	BwOut         int64     `json:"bw_out"`
	LastCtrIn     int64     `json:"last_ctr_in"`
	LastCtrOut    int64     `json:"last_ctr_out"`
	LastRefreshed time.Time `json:"last_refreshed"`
}

const bwColumns = `"id", "uuid", "mac", "start_period", "bw_in", "bw_out", "last_ctr_in", "last_ctr_out", "last_refreshed"`

// UpdateBwUsage updates the live sample for (uuid, mac, start_period), or
// inserts it when none exists.
func UpdateBwUsage(ctx context.Context, q dbapi.Querier, snap *schema.Snapshot, u BwUsageUpdate) (BandwidthUsage, error) {
	if err := u.Validate(); err != nil {
		return BandwidthUsage{}, err
	}
	if _, err := tableColumns(snap, TableBwUsage); err != nil {
		return BandwidthUsage{}, err
	}

	refreshed := time.Now().UTC()
	if u.LastRefreshed != nil {
		refreshed = u.LastRefreshed.UTC()
	}
	args := []any{u.UUID, u.MAC, u.StartPeriod, u.BwIn, u.BwOut, u.LastCtrIn, u.LastCtrOut, refreshed}

	deleted := ""
	if snap.HasColumn(TableBwUsage, "deleted") {
		deleted = ` AND "deleted" = 0`
	}
	touched := ""
	if snap.HasColumn(TableBwUsage, "updated_at") {
		touched = `, "updated_at" = now()`
	}

	update := `UPDATE ` + TableBwUsage + ` SET "bw_in" = $4, "bw_out" = $5, "last_ctr_in" = $6, "last_ctr_out" = $7, "last_refreshed" = $8` + touched +
		` WHERE "uuid" = $1 AND "mac" = $2 AND "start_period" = $3` + deleted + ` RETURNING ` + bwColumns
	usage, err := scanBwUsage(q.QueryRow(ctx, update, args...))
	if err == nil {
		return usage, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return BandwidthUsage{}, err
	}

	created := ""
	createdValue := ""
	if snap.HasColumn(TableBwUsage, "created_at") {
		created = `, "created_at"`
		createdValue = `, now()`
	}
	insert := `INSERT INTO ` + TableBwUsage + ` ("uuid", "mac", "start_period", "bw_in", "bw_out", "last_ctr_in", "last_ctr_out", "last_refreshed"` + created +
		`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8` + createdValue + `) RETURNING ` + bwColumns
	return scanBwUsage(q.QueryRow(ctx, insert, args...))
}

func scanBwUsage(row dbapi.Row) (BandwidthUsage, error) {
	var u BandwidthUsage
	err := row.Scan(&u.ID, &u.UUID, &u.MAC, &u.StartPeriod, &u.BwIn, &u.BwOut, &u.LastCtrIn, &u.LastCtrOut, &u.LastRefreshed)
	return u, err
}
