// Copyright 2025 The go-satgate Authors
// This file is part of the go-satgate library.
//
// The go-satgate library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-satgate library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-satgate library. If not, see <http://www.gnu.org/licenses/>.

// Package sqlstore implements the storage contract on database/sql, with
// postgres (lib/pq) for production and sqlite (modernc.org/sqlite) for
// embedded and test deployments. Both drivers accept $n placeholders, so the
// queries are shared.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/satgate/go-satgate/storage"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store implements storage.Store and storage.CustomerStore on a SQL database.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens a database with the given driver ("postgres" or "sqlite"),
// verifies connectivity and applies the schema.
func Open(driver, dsn string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("sqlstore: unknown driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if driver == DriverSQLite {
		// sqlite tolerates a single writer only.
		db.SetMaxOpenConns(1)
	}
	store, err := New(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing database handle and applies the schema.
func New(db *sql.DB, driver string) (*Store, error) {
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	if _, err := db.Exec(schema(driver)); err != nil {
		return nil, fmt.Errorf("sqlstore: apply schema: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a uniqueness constraint error on
// either backend.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// placeholders returns "$start,$start+1,..." for n values.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ",")
}

const intentColumns = `id, amount_sats, status, address_id, required_confs,
	expires_at, confirmed_at, customer_id, email, memo, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*storage.Intent, error) {
	var (
		in          storage.Intent
		addressID   sql.NullString
		confirmedAt sql.NullTime
		customerID  sql.NullString
		email       sql.NullString
		memo        sql.NullString
	)
	err := row.Scan(&in.ID, &in.AmountSats, &in.Status, &addressID, &in.RequiredConfs,
		&in.ExpiresAt, &confirmedAt, &customerID, &email, &memo, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.AddressID = addressID.String
	in.ConfirmedAt = timePtr(confirmedAt)
	in.CustomerID = customerID.String
	in.Email = email.String
	in.Memo = memo.String
	in.ExpiresAt = in.ExpiresAt.UTC()
	in.CreatedAt = in.CreatedAt.UTC()
	in.UpdatedAt = in.UpdatedAt.UTC()
	return &in, nil
}

// CreateIntent implements storage.IntentStore.
func (s *Store) CreateIntent(ctx context.Context, in *storage.Intent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_intents (`+intentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		in.ID, in.AmountSats, in.Status, nullString(in.AddressID), in.RequiredConfs,
		in.ExpiresAt.UTC(), nullTime(in.ConfirmedAt), nullString(in.CustomerID),
		nullString(in.Email), nullString(in.Memo), in.CreatedAt.UTC(), in.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: intent %s", storage.ErrConflict, in.ID)
		}
		return fmt.Errorf("create intent: %w", err)
	}
	return nil
}

// GetIntent implements storage.IntentStore.
func (s *Store) GetIntent(ctx context.Context, id string) (*storage.Intent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id)
	in, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: intent %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get intent: %w", err)
	}
	return in, nil
}

// TransitionIntent implements storage.IntentStore.
func (s *Store) TransitionIntent(ctx context.Context, id string, from []storage.IntentStatus, to storage.IntentStatus, confirmedAt *time.Time) (*storage.Intent, bool, error) {
	args := []any{id, string(to), nullTime(confirmedAt), time.Now().UTC()}
	for _, st := range from {
		args = append(args, string(st))
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_intents
		SET status = $2, confirmed_at = $3, updated_at = $4
		WHERE id = $1 AND status IN (`+placeholders(5, len(from))+`)`, args...)
	if err != nil {
		return nil, false, fmt.Errorf("transition intent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	in, err := s.GetIntent(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return in, n > 0, nil
}

// ListIntentsByStatus implements storage.IntentStore.
func (s *Store) ListIntentsByStatus(ctx context.Context, statuses ...storage.IntentStatus) ([]*storage.Intent, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE status IN (`+placeholders(1, len(statuses))+`)
		ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var out []*storage.Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// ListExpiredPending implements storage.IntentStore.
func (s *Store) ListExpiredPending(ctx context.Context, now time.Time) ([]*storage.Intent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE status = $1 AND expires_at <= $2
		ORDER BY created_at`, string(storage.IntentPending), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var out []*storage.Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

const addressColumns = `id, address, derivation_index, script_pub_key_hex, intent_id, assigned_at, created_at`

func scanAddress(row rowScanner) (*storage.DepositAddress, error) {
	var (
		a          storage.DepositAddress
		intentID   sql.NullString
		assignedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Address, &a.DerivationIndex, &a.ScriptPubKeyHex, &intentID, &assignedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.IntentID = intentID.String
	a.AssignedAt = timePtr(assignedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// CreateAddress implements storage.AddressStore.
func (s *Store) CreateAddress(ctx context.Context, a *storage.DepositAddress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposit_addresses (`+addressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Address, a.DerivationIndex, a.ScriptPubKeyHex,
		nullString(a.IntentID), nullTime(a.AssignedAt), a.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: address %s / index %d", storage.ErrConflict, a.Address, a.DerivationIndex)
		}
		return fmt.Errorf("create address: %w", err)
	}
	return nil
}

// GetAddress implements storage.AddressStore.
func (s *Store) GetAddress(ctx context.Context, id string) (*storage.DepositAddress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+addressColumns+` FROM deposit_addresses WHERE id = $1`, id)
	a, err := scanAddress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: address id %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

// GetAddressByAddress implements storage.AddressStore.
func (s *Store) GetAddressByAddress(ctx context.Context, address string) (*storage.DepositAddress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+addressColumns+` FROM deposit_addresses WHERE address = $1`, address)
	a, err := scanAddress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: address %s", storage.ErrNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

// NextDerivationIndex implements storage.AddressStore.
func (s *Store) NextDerivationIndex(ctx context.Context) (uint32, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(derivation_index) + 1, 0) FROM deposit_addresses`).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next derivation index: %w", err)
	}
	return uint32(next), nil
}

// LowestUnassigned implements storage.AddressStore.
func (s *Store) LowestUnassigned(ctx context.Context) (*storage.DepositAddress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+addressColumns+` FROM deposit_addresses
		WHERE intent_id IS NULL
		ORDER BY derivation_index
		LIMIT 1`)
	a, err := scanAddress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no unassigned address", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lowest unassigned: %w", err)
	}
	return a, nil
}

// ListAssigned implements storage.AddressStore.
func (s *Store) ListAssigned(ctx context.Context) ([]*storage.DepositAddress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+addressColumns+` FROM deposit_addresses
		WHERE intent_id IS NOT NULL
		ORDER BY derivation_index`)
	if err != nil {
		return nil, fmt.Errorf("list assigned: %w", err)
	}
	defer rows.Close()

	var out []*storage.DepositAddress
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AssignAddressToIntent implements storage.AddressStore. The address and
// intent rows are linked in one transaction.
func (s *Store) AssignAddressToIntent(ctx context.Context, addressID, intentID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("assign address: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_addresses SET intent_id = $2, assigned_at = $3
		WHERE id = $1 AND intent_id IS NULL`, addressID, intentID, at.UTC())
	if err != nil {
		return fmt.Errorf("assign address: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var existing sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT intent_id FROM deposit_addresses WHERE id = $1`, addressID).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: address id %s", storage.ErrNotFound, addressID)
		}
		if err != nil {
			return fmt.Errorf("assign address: %w", err)
		}
		if existing.String == intentID {
			return tx.Commit() // already linked
		}
		return fmt.Errorf("%w: address %s already assigned", storage.ErrConflict, addressID)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE payment_intents SET address_id = $2, updated_at = $3
		WHERE id = $1 AND address_id IS NULL`, intentID, addressID, at.UTC())
	if err != nil {
		return fmt.Errorf("assign address: intent side: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var existing sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT address_id FROM payment_intents WHERE id = $1`, intentID).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: intent %s", storage.ErrNotFound, intentID)
		}
		if err != nil {
			return fmt.Errorf("assign address: intent side: %w", err)
		}
		if existing.String != addressID {
			return fmt.Errorf("%w: intent %s already has an address", storage.ErrConflict, intentID)
		}
	}
	return tx.Commit()
}

const observationColumns = `id, txid, vout, value_sats, confirmations, address_id, script_pub_key_hex, status, seen_at, updated_at`

func scanObservation(row rowScanner) (*storage.TxObservation, error) {
	var o storage.TxObservation
	err := row.Scan(&o.ID, &o.TxID, &o.Vout, &o.ValueSats, &o.Confirmations,
		&o.AddressID, &o.ScriptPubKeyHex, &o.Status, &o.SeenAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.SeenAt = o.SeenAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

// UpsertObservation implements storage.ObservationStore.
func (s *Store) UpsertObservation(ctx context.Context, o *storage.TxObservation) (bool, error) {
	update := func() (bool, error) {
		res, err := s.db.ExecContext(ctx, `
			UPDATE tx_observations
			SET value_sats = $3, confirmations = $4, status = $5, updated_at = $6
			WHERE txid = $1 AND vout = $2`,
			o.TxID, o.Vout, o.ValueSats, o.Confirmations, string(o.Status), o.UpdatedAt.UTC())
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	}

	updated, err := update()
	if err != nil {
		return false, fmt.Errorf("upsert observation: %w", err)
	}
	if updated {
		existing, err := s.GetObservation(ctx, o.TxID, o.Vout)
		if err != nil {
			return false, err
		}
		o.ID = existing.ID
		o.SeenAt = existing.SeenAt
		return false, nil
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tx_observations (`+observationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.TxID, o.Vout, o.ValueSats, o.Confirmations,
		o.AddressID, o.ScriptPubKeyHex, string(o.Status), o.SeenAt.UTC(), o.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			// Lost an insert race; the row exists now, update it.
			if _, uerr := update(); uerr != nil {
				return false, fmt.Errorf("upsert observation: %w", uerr)
			}
			return false, nil
		}
		return false, fmt.Errorf("upsert observation: %w", err)
	}
	return true, nil
}

// GetObservation implements storage.ObservationStore.
func (s *Store) GetObservation(ctx context.Context, txid string, vout uint32) (*storage.TxObservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+observationColumns+` FROM tx_observations WHERE txid = $1 AND vout = $2`, txid, vout)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: observation %s:%d", storage.ErrNotFound, txid, vout)
	}
	if err != nil {
		return nil, fmt.Errorf("get observation: %w", err)
	}
	return o, nil
}

// LatestObservationForIntent implements storage.ObservationStore.
func (s *Store) LatestObservationForIntent(ctx context.Context, intentID string) (*storage.TxObservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+obsJoinColumns()+` FROM tx_observations o
		JOIN payment_intents i ON i.address_id = o.address_id
		WHERE i.id = $1
		ORDER BY o.seen_at DESC, o.updated_at DESC
		LIMIT 1`, intentID)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no observation for intent %s", storage.ErrNotFound, intentID)
	}
	if err != nil {
		return nil, fmt.Errorf("latest observation: %w", err)
	}
	return o, nil
}

// ListObservationsForIntent implements storage.ObservationStore.
func (s *Store) ListObservationsForIntent(ctx context.Context, intentID string) ([]*storage.TxObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+obsJoinColumns()+` FROM tx_observations o
		JOIN payment_intents i ON i.address_id = o.address_id
		WHERE i.id = $1
		ORDER BY o.seen_at, o.vout`, intentID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []*storage.TxObservation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func obsJoinColumns() string {
	cols := strings.Split(observationColumns, ",")
	for i, c := range cols {
		cols[i] = "o." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// CreateToken implements storage.TokenStore.
func (s *Store) CreateToken(ctx context.Context, t *storage.MagicLinkToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO magic_link_tokens (id, token, intent_id, consumed, consumed_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Token, t.IntentID, t.Consumed, nullTime(t.ConsumedAt), t.ExpiresAt.UTC(), t.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: token", storage.ErrConflict)
		}
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// GetToken implements storage.TokenStore.
func (s *Store) GetToken(ctx context.Context, token string) (*storage.MagicLinkToken, error) {
	var (
		t          storage.MagicLinkToken
		consumedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token, intent_id, consumed, consumed_at, expires_at, created_at
		FROM magic_link_tokens WHERE token = $1`, token).
		Scan(&t.ID, &t.Token, &t.IntentID, &t.Consumed, &consumedAt, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: token", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	t.ConsumedAt = timePtr(consumedAt)
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// ConsumeToken implements storage.TokenStore.
func (s *Store) ConsumeToken(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE magic_link_tokens SET consumed = TRUE, consumed_at = $2
		WHERE token = $1 AND consumed = FALSE`, token, at.UTC())
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish already-consumed from missing.
		if _, err := s.GetToken(ctx, token); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// GetMeta implements storage.MetadataStore.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM system_metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: metadata %s", storage.ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("get metadata: %w", err)
	}
	return value, nil
}

// PutMeta implements storage.MetadataStore.
func (s *Store) PutMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_metadata (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}
	return nil
}

// UpsertCustomerByEmail implements the optional storage.CustomerStore
// capability.
func (s *Store) UpsertCustomerByEmail(ctx context.Context, email string) (*storage.Customer, error) {
	c := &storage.Customer{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, email, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING`, c.ID, c.Email, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, email, created_at FROM customers WHERE email = $1`, email).
		Scan(&c.ID, &c.Email, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

var (
	_ storage.Store         = (*Store)(nil)
	_ storage.CustomerStore = (*Store)(nil)
)
