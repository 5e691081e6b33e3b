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

package sqlstore

import "strings"

// The schema is shared between postgres and sqlite; the only divergence is the
// timestamp column type. All timestamps are UTC, all amounts are 64-bit
// satoshi integers.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS payment_intents (
	id              TEXT PRIMARY KEY,
	amount_sats     BIGINT NOT NULL,
	status          TEXT NOT NULL,
	address_id      TEXT,
	required_confs  BIGINT NOT NULL,
	expires_at      @TIMESTAMP@ NOT NULL,
	confirmed_at    @TIMESTAMP@,
	customer_id     TEXT,
	email           TEXT,
	memo            TEXT,
	created_at      @TIMESTAMP@ NOT NULL,
	updated_at      @TIMESTAMP@ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intents_status      ON payment_intents (status);
CREATE INDEX IF NOT EXISTS idx_intents_expires_at  ON payment_intents (expires_at);
CREATE INDEX IF NOT EXISTS idx_intents_customer_id ON payment_intents (customer_id);
CREATE INDEX IF NOT EXISTS idx_intents_email       ON payment_intents (email);

CREATE TABLE IF NOT EXISTS deposit_addresses (
	id                 TEXT PRIMARY KEY,
	address            TEXT NOT NULL,
	derivation_index   BIGINT NOT NULL,
	script_pub_key_hex TEXT NOT NULL,
	intent_id          TEXT,
	assigned_at        @TIMESTAMP@,
	created_at         @TIMESTAMP@ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_addresses_address     ON deposit_addresses (address);
CREATE UNIQUE INDEX IF NOT EXISTS idx_addresses_deriv_index ON deposit_addresses (derivation_index);

CREATE TABLE IF NOT EXISTS tx_observations (
	id                 TEXT PRIMARY KEY,
	txid               TEXT NOT NULL,
	vout               BIGINT NOT NULL,
	value_sats         BIGINT NOT NULL,
	confirmations      BIGINT NOT NULL,
	address_id         TEXT NOT NULL,
	script_pub_key_hex TEXT NOT NULL,
	status             TEXT NOT NULL,
	seen_at            @TIMESTAMP@ NOT NULL,
	updated_at         @TIMESTAMP@ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_txid_vout  ON tx_observations (txid, vout);
CREATE INDEX IF NOT EXISTS idx_observations_address_id        ON tx_observations (address_id);

CREATE TABLE IF NOT EXISTS magic_link_tokens (
	id          TEXT PRIMARY KEY,
	token       TEXT NOT NULL,
	intent_id   TEXT NOT NULL,
	consumed    BOOLEAN NOT NULL DEFAULT FALSE,
	consumed_at @TIMESTAMP@,
	expires_at  @TIMESTAMP@ NOT NULL,
	created_at  @TIMESTAMP@ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tokens_token ON magic_link_tokens (token);

CREATE TABLE IF NOT EXISTS customers (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	created_at @TIMESTAMP@ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_email ON customers (email);

CREATE TABLE IF NOT EXISTS system_metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at @TIMESTAMP@ NOT NULL
);
`

// schema returns the DDL for the given driver.
func schema(driver string) string {
	ts := "TIMESTAMP"
	if driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}
	return strings.ReplaceAll(schemaTemplate, "@TIMESTAMP@", ts)
}
