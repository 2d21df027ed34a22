package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetServices returns owner's cached service list in its original order.
// ok is false when owner has no list or it is older than ttl. A saved empty
// list is a hit.
func (db *DB) GetServices(ctx context.Context, owner string, ttl time.Duration) ([]Service, bool, error) {
	var cachedAt int64
	err := db.conn.QueryRowContext(ctx, `SELECT cached_at FROM service_lists WHERE owner = ?`, owner).Scan(&cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read services freshness: %w", err)
	}
	if db.now().Sub(time.Unix(cachedAt, 0)) >= ttl {
		return nil, false, nil
	}

	query := `
		SELECT s.id, s.name, s.text, s.url, s.icon, s.category, s.token_accept,
		       t.service_position, t.header_token_key_name, t.url_token_key_name
		FROM services s
		LEFT JOIN token_key_names t ON t.owner = s.owner AND t.service_position = s.position
		WHERE s.owner = ?
		ORDER BY s.position
	`
	rows, err := db.conn.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query services: %w", err)
	}
	defer func() { _ = rows.Close() }()

	services := []Service{}
	for rows.Next() {
		var svc Service
		var linked sql.NullInt64
		var header, urlName sql.NullString
		if err := rows.Scan(
			&svc.ID,
			&svc.Name,
			&svc.Text,
			&svc.URL,
			&svc.Icon,
			&svc.Category,
			&svc.TokenAccept,
			&linked,
			&header,
			&urlName,
		); err != nil {
			return nil, false, fmt.Errorf("failed to scan service: %w", err)
		}
		if linked.Valid {
			svc.TokenKeyName = &TokenKeyName{Header: header.String, URL: urlName.String}
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to iterate services: %w", err)
	}
	return services, true, nil
}

// SaveServices replaces owner's service list in one transaction. Other
// owners' lists are untouched.
func (db *DB) SaveServices(ctx context.Context, owner string, services []Service) error {
	cachedAt := db.now().Unix()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteOwnerServices(ctx, tx, owner); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO service_lists (owner, cached_at) VALUES (?, ?)`, owner, cachedAt); err != nil {
			return fmt.Errorf("failed to save services freshness: %w", err)
		}

		svcStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO services (owner, position, id, name, text, url, icon, category, token_accept)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare service insert: %w", err)
		}
		defer func() { _ = svcStmt.Close() }()

		keyStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO token_key_names (owner, service_position, header_token_key_name, url_token_key_name)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare token key insert: %w", err)
		}
		defer func() { _ = keyStmt.Close() }()

		for i, svc := range services {
			if _, err := svcStmt.ExecContext(ctx,
				owner,
				i,
				svc.ID,
				svc.Name,
				svc.Text,
				svc.URL,
				svc.Icon,
				svc.Category,
				svc.TokenAccept,
			); err != nil {
				return fmt.Errorf("failed to save service %s: %w", svc.ID, err)
			}
			if svc.TokenKeyName == nil {
				continue
			}
			if _, err := keyStmt.ExecContext(ctx,
				owner,
				i,
				nullString(svc.TokenKeyName.Header),
				nullString(svc.TokenKeyName.URL),
			); err != nil {
				return fmt.Errorf("failed to save token key names for %s: %w", svc.ID, err)
			}
		}
		return nil
	})
}

// DeleteServices empties the service tables for every owner. Deleting an
// empty cache succeeds.
func (db *DB) DeleteServices(ctx context.Context) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"token_key_names", "services", "service_lists"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func deleteOwnerServices(ctx context.Context, tx *sql.Tx, owner string) error {
	for _, table := range []string{"token_key_names", "services", "service_lists"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE owner = ?`, owner); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
