/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

const (
	schemaKeyValue = `
	-- Create key/value table
	CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Create index for recently changed keys
	CREATE INDEX IF NOT EXISTS idx_kv_entries_updated_at ON kv_entries(updated_at);
	`

	queryGetValue = `
		SELECT value, version
		FROM kv_entries
		WHERE key = ?`

	queryUpsertValue = `
		INSERT INTO kv_entries (key, value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = kv_entries.version + 1,
			updated_at = excluded.updated_at`

	queryInsertValue = `
		INSERT INTO kv_entries (key, value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO NOTHING`

	queryUpdateValue = `
		UPDATE kv_entries
		SET value = ?, version = version + 1, updated_at = ?
		WHERE key = ? AND version = ?`

	queryDeleteValue = `
		DELETE FROM kv_entries
		WHERE key = ?`

	queryDeleteValueVersion = `
		DELETE FROM kv_entries
		WHERE key = ? AND version = ?`

	queryListKeys = `
		SELECT key
		FROM kv_entries
		WHERE key LIKE ? ESCAPE '\'
		ORDER BY key`
)
