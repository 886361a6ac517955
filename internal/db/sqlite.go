package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// DB is the SQLite Store
type DB struct {
	conn *sql.DB
	path string
}

var _ Store = (*DB)(nil)

// Open opens or creates the SQLite database at the given path
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers from concurrent builds.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.conn.Exec(string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the underlying database file path
func (db *DB) Path() string {
	return db.path
}

func (db *DB) ProjectID(name string) (int64, error) {
	var id int64
	err := db.conn.QueryRow(`SELECT id FROM projects WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get project id: %w", err)
	}
	return id, nil
}

func (db *DB) ProjectName(id int64) (string, error) {
	var name string
	err := db.conn.QueryRow(`SELECT name FROM projects WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("project id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get project name: %w", err)
	}
	return name, nil
}

func (db *DB) EnsureProject(name string) (int64, error) {
	if _, err := db.conn.Exec(`INSERT OR IGNORE INTO projects (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("failed to create project: %w", err)
	}
	return db.ProjectID(name)
}

func (db *DB) Projects() ([]Project, error) {
	rows, err := db.conn.Query(`SELECT id, name FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (db *DB) LatestBuildNumber(projectID int64) (int, error) {
	var n int
	err := db.conn.QueryRow(
		`SELECT COALESCE(MAX(build_number), 0) FROM builds WHERE project_id = ?`, projectID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest build number: %w", err)
	}
	return n, nil
}

func (db *DB) LatestStatus(projectID int64) (Status, error) {
	var status string
	err := db.conn.QueryRow(`
		SELECT status FROM builds
		WHERE project_id = ? AND branch = ?
		ORDER BY build_number DESC LIMIT 1
	`, projectID, DefaultBranch).Scan(&status)
	if err == sql.ErrNoRows {
		return StatusUnknown, nil
	}
	if err != nil {
		return StatusUnknown, fmt.Errorf("failed to get latest status: %w", err)
	}
	return Status(status), nil
}

func (db *DB) Status(projectID int64, buildNumber int) (Status, error) {
	var status string
	err := db.conn.QueryRow(`
		SELECT status FROM builds
		WHERE project_id = ? AND build_number = ?
	`, projectID, buildNumber).Scan(&status)
	if err == sql.ErrNoRows {
		return StatusUnknown, nil
	}
	if err != nil {
		return StatusUnknown, fmt.Errorf("failed to get build status: %w", err)
	}
	return Status(status), nil
}

func (db *DB) AppendBuild(projectID int64, buildNumber int, status Status, files string) error {
	_, err := db.conn.Exec(`
		INSERT INTO builds (project_id, build_number, branch, status, files, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, projectID, buildNumber, DefaultBranch, string(status), files, time.Now().UTC())
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("build %d: %w", buildNumber, ErrDuplicateBuild)
		}
		return fmt.Errorf("failed to append build: %w", err)
	}
	return nil
}

func (db *DB) RecentBuilds(projectID int64, limit int) ([]Build, error) {
	rows, err := db.conn.Query(`
		SELECT project_id, build_number, branch, status, files, created_at
		FROM builds
		WHERE project_id = ?
		ORDER BY build_number DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var (
			b      Build
			status string
			files  string
		)
		if err := rows.Scan(&b.ProjectID, &b.Number, &b.Branch, &status, &files, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		b.Status = Status(status)
		b.Files = SplitFiles(files)
		builds = append(builds, b)
	}
	return builds, rows.Err()
}
