package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"route-playback/internal/playback"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// ErrNoWaypoints is returned when a vehicle has no stored route.
var ErrNoWaypoints = errors.New("no waypoints stored")

// Store reads and writes planned routes. Query text is written with ?
// placeholders and rebound for postgres.
type Store struct {
	db     *sql.DB
	driver string
}

func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	boolType := "INTEGER"
	if s.driver == DriverPostgres {
		boolType = "BOOLEAN"
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS waypoints (
	vehicle_id TEXT NOT NULL,
	day_of_week INTEGER NOT NULL DEFAULT 0,
	sequence INTEGER NOT NULL,
	ts TEXT,
	latitude DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	is_parking %s NOT NULL DEFAULT FALSE,
	parking_duration_minutes INTEGER,
	original_address TEXT,
	PRIMARY KEY (vehicle_id, day_of_week, sequence)
)`, boolType)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create waypoints table: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders as $1..$n for postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FetchWaypoints returns a vehicle's route ordered by day then sequence.
// A nil day returns every day.
func (s *Store) FetchWaypoints(ctx context.Context, vehicleID string, day *int) ([]playback.Waypoint, error) {
	q := `SELECT sequence, ts, day_of_week, latitude, longitude, is_parking, parking_duration_minutes, original_address
FROM waypoints WHERE vehicle_id = ?`
	args := []any{vehicleID}
	if day != nil {
		q += ` AND day_of_week = ?`
		args = append(args, *day)
	}
	q += ` ORDER BY day_of_week, sequence`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query waypoints: %w", err)
	}
	defer rows.Close()

	var out []playback.Waypoint
	for rows.Next() {
		var (
			w        playback.Waypoint
			ts       sql.NullString
			duration sql.NullInt64
			address  sql.NullString
		)
		if err := rows.Scan(&w.Sequence, &ts, &w.DayOfWeek, &w.Latitude, &w.Longitude, &w.IsParking, &duration, &address); err != nil {
			return nil, err
		}
		if ts.Valid && ts.String != "" {
			t, err := time.Parse(time.RFC3339Nano, ts.String)
			if err != nil {
				log.Printf("vehicle %s waypoint %d: bad stored timestamp %q", vehicleID, w.Sequence, ts.String)
			} else {
				w.Timestamp = &t
			}
		}
		if duration.Valid {
			d := int(duration.Int64)
			w.ParkingDurationMinutes = &d
		}
		if address.Valid {
			a := address.String
			w.OriginalAddress = &a
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("vehicle %q: %w", vehicleID, ErrNoWaypoints)
	}
	return out, nil
}

// ListVehicles returns the distinct vehicle ids with stored waypoints.
func (s *Store) ListVehicles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT vehicle_id FROM waypoints ORDER BY vehicle_id`)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertWaypoints upserts a vehicle's planned route in one transaction.
func (s *Store) InsertWaypoints(ctx context.Context, vehicleID string, wps []playback.Waypoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := s.rebind(`INSERT INTO waypoints (vehicle_id, day_of_week, sequence, ts, latitude, longitude, is_parking, parking_duration_minutes, original_address)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (vehicle_id, day_of_week, sequence) DO UPDATE SET
	ts = excluded.ts, latitude = excluded.latitude, longitude = excluded.longitude,
	is_parking = excluded.is_parking, parking_duration_minutes = excluded.parking_duration_minutes,
	original_address = excluded.original_address`)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, w := range wps {
		var ts any
		if w.Timestamp != nil {
			ts = w.Timestamp.Format(time.RFC3339Nano)
		}
		var duration any
		if w.ParkingDurationMinutes != nil {
			duration = *w.ParkingDurationMinutes
		}
		var address any
		if w.OriginalAddress != nil {
			address = *w.OriginalAddress
		}
		if _, err := stmt.ExecContext(ctx, vehicleID, w.DayOfWeek, w.Sequence, ts, w.Latitude, w.Longitude, w.IsParking, duration, address); err != nil {
			return fmt.Errorf("insert waypoint %d: %w", w.Sequence, err)
		}
	}
	return tx.Commit()
}
