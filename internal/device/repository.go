package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// KnownDevice is a device the controller has seen at least once.
// Only identity is kept; attribute values are never persisted.
type KnownDevice struct {
	ID         string    `json:"id"`
	Class      string    `json:"class"`
	Name       string    `json:"name"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// Repository persists the known-device catalogue.
type Repository interface {
	// Touch records that the device was seen now, creating it on first
	// sight and otherwise updating class, name, address and last_seen.
	Touch(ctx context.Context, kd KnownDevice) error

	// Get returns one known device, or ErrUnknownDevice.
	Get(ctx context.Context, id string) (*KnownDevice, error)

	// List returns all known devices ordered by id.
	List(ctx context.Context) ([]KnownDevice, error)
}

// SQLiteRepository implements Repository on the known_devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const timeLayout = time.RFC3339Nano

// Touch implements Repository.
func (r *SQLiteRepository) Touch(ctx context.Context, kd KnownDevice) error {
	if kd.ID == "" || kd.Class == "" {
		return fmt.Errorf("%w: known device needs id and class", ErrInvalidRef)
	}
	seen := kd.LastSeen
	if seen.IsZero() {
		seen = time.Now()
	}
	at := seen.UTC().Format(timeLayout)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO known_devices (id, class, name, remote_addr, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			class       = excluded.class,
			name        = excluded.name,
			remote_addr = CASE WHEN excluded.remote_addr = '' THEN known_devices.remote_addr ELSE excluded.remote_addr END,
			last_seen   = excluded.last_seen`,
		kd.ID, kd.Class, kd.Name, kd.RemoteAddr, at, at)
	if err != nil {
		return fmt.Errorf("recording known device %s: %w", kd.ID, err)
	}
	return nil
}

// Get implements Repository.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*KnownDevice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class, name, remote_addr, first_seen, last_seen
		FROM known_devices WHERE id = ?`, id)

	kd, err := scanKnownDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %q", ErrUnknownDevice, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying known device: %w", err)
	}
	return kd, nil
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context) ([]KnownDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, class, name, remote_addr, first_seen, last_seen
		FROM known_devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing known devices: %w", err)
	}
	defer rows.Close()

	var out []KnownDevice
	for rows.Next() {
		kd, err := scanKnownDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning known device: %w", err)
		}
		out = append(out, *kd)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKnownDevice(s scanner) (*KnownDevice, error) {
	var kd KnownDevice
	var first, last string
	if err := s.Scan(&kd.ID, &kd.Class, &kd.Name, &kd.RemoteAddr, &first, &last); err != nil {
		return nil, err
	}
	kd.FirstSeen, _ = time.Parse(timeLayout, first) //nolint:errcheck // written by Touch
	kd.LastSeen, _ = time.Parse(timeLayout, last)   //nolint:errcheck // written by Touch
	return &kd, nil
}

// Restore instantiates every known device whose class is in the
// registry's catalogue and registers it, so rules can address devices
// before they reconnect. Devices of unknown classes are skipped and
// logged. It returns the number of devices registered.
//
// reserved lists devices declared elsewhere that take precedence: a
// known device holding a reserved (class, name) under a different id is
// skipped and logged, leaving the name free for its declaration.
func Restore(ctx context.Context, repo Repository, r *Registry, reserved ...Ref) (int, error) {
	known, err := repo.List(ctx)
	if err != nil {
		return 0, err
	}

	held := make(map[nameKey]string, len(reserved))
	for _, ref := range reserved {
		if ref.Class != "" && ref.Name != "" {
			held[nameKey{ref.Class, ref.Name}] = ref.ID
		}
	}

	n := 0
	for _, kd := range known {
		if _, err := r.Resolve(kd.ID); err == nil {
			continue
		}
		if id, ok := held[nameKey{kd.Class, kd.Name}]; ok && id != kd.ID {
			r.logger.Warn("skipping known device, name is declared for another device",
				"id", kd.ID, "class", kd.Class, "name", kd.Name, "declared_id", id)
			continue
		}
		d, err := r.catalog.New(ctx, kd.Class, kd.ID, kd.Name)
		if err != nil {
			r.logger.Warn("skipping known device", "id", kd.ID, "class", kd.Class, "error", err)
			continue
		}
		if err := r.Register(d); err != nil {
			r.logger.Warn("skipping known device", "id", kd.ID, "class", kd.Class, "error", err)
			continue
		}
		n++
	}
	return n, nil
}
