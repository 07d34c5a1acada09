package migrate

import (
	"cmp"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Migrator applies numbered SQL scripts from an fs.FS. Each file is named
// NNN_name.sql and holds an up section and a down section. The SQL must run
// unchanged on every supported engine (sqlite, postgres).
type Migrator struct {
	db  *gorm.DB
	fs  fs.FS
	dir string
}

// NewMigrator creates a new migration runner
func NewMigrator(db *gorm.DB, migrations fs.FS, dir string) *Migrator {
	return &Migrator{db: db, fs: migrations, dir: dir}
}

type script struct {
	version int
	name    string
	up      string
	down    string
}

// Up applies every script that has not been recorded yet, oldest first
func (m *Migrator) Up() error {
	applied, err := m.applied()
	if err != nil {
		return err
	}
	scripts, err := m.scripts()
	if err != nil {
		return err
	}

	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	pending := 0
	for _, s := range scripts {
		if done[s.version] {
			continue
		}
		pending++
		err := m.exec(s.up, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.version, s.name)
		if err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", s.version, s.name, err)
		}
		log.Info().Int("version", s.version).Str("name", s.name).Msg("applied migration")
	}

	if pending == 0 {
		log.Debug().Msg("schema is up to date")
	}
	return nil
}

// Down rolls back the most recently applied script. It is a no-op on an
// empty schema.
func (m *Migrator) Down() error {
	applied, err := m.applied()
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		log.Info().Msg("no migrations to roll back")
		return nil
	}
	last := applied[len(applied)-1]

	scripts, err := m.scripts()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(scripts, func(s script) bool { return s.version == last })
	if i < 0 {
		return fmt.Errorf("migration file for version %d not found", last)
	}
	s := scripts[i]

	if err := m.exec(s.down, "DELETE FROM schema_migrations WHERE version = ?", s.version); err != nil {
		return fmt.Errorf("failed to roll back migration %d (%s): %w", s.version, s.name, err)
	}
	log.Info().Int("version", s.version).Str("name", s.name).Msg("rolled back migration")
	return nil
}

// exec runs the statements of sql and then the bookkeeping query in one
// transaction
func (m *Migrator) exec(sql, record string, args ...any) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range splitStatements(sql) {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return tx.Exec(record, args...).Error
	})
}

// applied returns the recorded versions in ascending order, creating the
// bookkeeping table on first use
func (m *Migrator) applied() ([]int, error) {
	err := m.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var versions []int
	if err := m.db.Table("schema_migrations").Order("version").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	return versions, nil
}

// scripts reads every NNN_name.sql file in the directory, ordered by version.
// Other files are ignored.
func (m *Migrator) scripts() ([]script, error) {
	entries, err := fs.ReadDir(m.fs, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var scripts []script
	for _, entry := range entries {
		base, ok := strings.CutSuffix(entry.Name(), ".sql")
		if entry.IsDir() || !ok {
			continue
		}
		num, name, ok := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil {
			log.Warn().Str("file", entry.Name()).Msg("skipping migration file without a numeric prefix")
			continue
		}

		content, err := fs.ReadFile(m.fs, path.Join(m.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}
		up, down := splitSections(string(content))
		scripts = append(scripts, script{version: version, name: name, up: up, down: down})
	}

	slices.SortFunc(scripts, func(a, b script) int { return cmp.Compare(a.version, b.version) })
	return scripts, nil
}

// splitSections separates the up and down parts of a script. Lines before
// any marker belong to the up part.
func splitSections(content string) (up, down string) {
	var sections [2][]string
	current := 0
	for _, line := range strings.Split(content, "\n") {
		switch strings.TrimSpace(line) {
		case upMarker:
			current = 0
		case downMarker:
			current = 1
		default:
			sections[current] = append(sections[current], line)
		}
	}
	return strings.Join(sections[0], "\n"), strings.Join(sections[1], "\n")
}

// splitStatements breaks a script into single statements so every driver can
// execute them one at a time. Statements end with ';' at the end of a line.
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}
