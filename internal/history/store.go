// Package history records analyzed scans and the points they earn.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/menta2k/waste-analyzer/pkg/types"
)

// ErrNotFound is returned when a scan or user does not exist.
var ErrNotFound = errors.New("not found")

// Scan is one stored analysis.
type Scan struct {
	ID          string               `json:"id"`
	UserID      string               `json:"userId,omitempty"`
	ImageURL    string               `json:"imageUrl"`
	// ImageKey is the object key of the stored capture. URLs handed out for
	// it expire, so readers presign the key again.
	ImageKey    string               `json:"-"`
	Kind        string               `json:"kind"`
	TotalItems  int                  `json:"totalItems"`
	TotalPoints int                  `json:"totalPoints"`
	Result      types.AnalysisResult `json:"result"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// User is the points ledger of one user. Points is the spendable balance,
// TotalPoints everything ever earned.
type User struct {
	ID                string    `json:"id"`
	Points            int       `json:"points"`
	TotalPoints       int       `json:"totalPoints"`
	Level             int       `json:"level"`
	PointsToNextLevel int       `json:"pointsToNextLevel"`
	Scans             int       `json:"scans"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// PointsPerLevel is how many earned points make one level.
const PointsPerLevel = 1000

// LevelFor returns the level reached with total earned points, starting at 1.
func LevelFor(total int) int {
	return max(total, 0)/PointsPerLevel + 1
}

// Store is a scan history on sqlite, mysql or postgres.
type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the database. driver is sqlite, mysql or postgres.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var driverName string
	switch driver {
	case "", "sqlite":
		driver, driverName = "sqlite", "sqlite"
	case "mysql":
		driverName = "mysql"
		if !strings.Contains(dsn, "parseTime=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "parseTime=true"
		}
	case "postgres":
		driverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// sqlite allows one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return &Store{db: db, dialect: driver}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, q := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	// databases created before image keys were stored
	if _, err := s.db.ExecContext(ctx, `SELECT image_key FROM waste_scans WHERE 1 = 0`); err != nil {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE waste_scans ADD COLUMN image_key VARCHAR(255) NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("migrate image_key: %w", err)
		}
		log.Info().Msg("Added image_key column to waste_scans")
	}
	return nil
}

func schema(dialect string) []string {
	resultType := "TEXT"
	if dialect == "mysql" {
		resultType = "MEDIUMTEXT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS waste_users (
  id VARCHAR(128) PRIMARY KEY,
  points INTEGER NOT NULL DEFAULT 0,
  total_points INTEGER NOT NULL DEFAULT 0,
  scans INTEGER NOT NULL DEFAULT 0,
  updated_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS waste_scans (
  id VARCHAR(36) PRIMARY KEY,
  user_id VARCHAR(128) NOT NULL,
  image_url TEXT NOT NULL,
  image_key VARCHAR(255) NOT NULL DEFAULT '',
  kind VARCHAR(16) NOT NULL,
  total_items INTEGER NOT NULL,
  total_points INTEGER NOT NULL,
  result ` + resultType + ` NOT NULL,
  created_at TIMESTAMP NOT NULL` + mysqlIndex(dialect) + `
)`,
	}
	if dialect != "mysql" {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS idx_waste_scans_user ON waste_scans (user_id, created_at)`)
	}
	return stmts
}

// mysql has no CREATE INDEX IF NOT EXISTS
func mysqlIndex(dialect string) string {
	if dialect != "mysql" {
		return ""
	}
	return ",\n  INDEX idx_waste_scans_user (user_id, created_at)"
}

// RecordScan stores res and credits its points to userID in one
// transaction. An empty userID stores the scan without crediting anyone.
// imageKey is the object key of the stored capture, if any.
func (s *Store) RecordScan(ctx context.Context, userID, imageKey string, res types.AnalysisResult) (*Scan, error) {
	scan := &Scan{
		ID:          uuid.NewString(),
		UserID:      userID,
		ImageURL:    res.ImageURL,
		ImageKey:    imageKey,
		Kind:        res.Kind.String(),
		TotalItems:  res.TotalItems(),
		TotalPoints: res.TotalPoints(),
		Result:      res.WithoutCrops(),
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	payload, err := json.Marshal(scan.Result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
INSERT INTO waste_scans (id, user_id, image_url, image_key, kind, total_items, total_points, result, created_at)
VALUES (?,?,?,?,?,?,?,?,?)`),
		scan.ID, scan.UserID, scan.ImageURL, scan.ImageKey, scan.Kind, scan.TotalItems, scan.TotalPoints, string(payload), scan.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert scan: %w", err)
	}

	if userID != "" {
		if err := s.credit(ctx, tx, userID, scan.TotalPoints, scan.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	log.Debug().
		Str("scan_id", scan.ID).
		Str("user_id", userID).
		Int("points", scan.TotalPoints).
		Msg("Recorded scan")
	return scan, nil
}

func (s *Store) credit(ctx context.Context, tx *sql.Tx, userID string, points int, at time.Time) error {
	r, err := tx.ExecContext(ctx, s.rebind(`
UPDATE waste_users SET points = points + ?, total_points = total_points + ?, scans = scans + 1, updated_at = ?
WHERE id = ?`), points, points, at, userID)
	if err != nil {
		return fmt.Errorf("credit user: %w", err)
	}
	if n, err := r.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, s.rebind(`
INSERT INTO waste_users (id, points, total_points, scans, updated_at) VALUES (?,?,?,?,?)`),
		userID, points, points, 1, at)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const scanColumns = `id, user_id, image_url, image_key, kind, total_items, total_points, result, created_at`

// GetScan returns one scan by id.
func (s *Store) GetScan(ctx context.Context, id string) (*Scan, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+scanColumns+` FROM waste_scans WHERE id = ?`), id)
	scan, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return scan, err
}

// ListScans returns the latest scans of a user, newest first.
func (s *Store) ListScans(ctx context.Context, userID string, limit int) ([]*Scan, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+scanColumns+` FROM waste_scans
WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Scan{}
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, scan)
	}
	return out, rows.Err()
}

// GetUser returns the points ledger of a user.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
SELECT id, points, total_points, scans, updated_at FROM waste_users WHERE id = ?`), id)
	var u User
	if err := row.Scan(&u.ID, &u.Points, &u.TotalPoints, &u.Scans, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Level = LevelFor(u.TotalPoints)
	u.PointsToNextLevel = u.Level*PointsPerLevel - u.TotalPoints
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (*Scan, error) {
	var scan Scan
	var payload string
	if err := r.Scan(&scan.ID, &scan.UserID, &scan.ImageURL, &scan.ImageKey, &scan.Kind,
		&scan.TotalItems, &scan.TotalPoints, &payload, &scan.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &scan.Result); err != nil {
		return nil, fmt.Errorf("decode result of scan %s: %w", scan.ID, err)
	}
	scan.Result.ImageURL = scan.ImageURL
	return &scan, nil
}

// rebind rewrites ? placeholders to $1, $2, ... for postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != "postgres" {
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
