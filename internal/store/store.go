// Package store provides the SQLite-backed agent configuration store. Agents
// are persisted across server restarts; the agent executor resolves them by
// id on every execution.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/agentrag-go/internal/apperr"
)

// DefaultTemperature is applied when an agent is created without one.
const DefaultTemperature = 0.7

// ErrAgentNotFound is wrapped by every lookup that addresses a missing agent.
var ErrAgentNotFound = errors.New("agent not found")

// Agent is a named prompt configuration, optionally bound to a vector index.
type Agent struct {
	ID                string    `json:"agent_id"`
	Name              string    `json:"name"`
	SystemInstruction string    `json:"system_instruction"`
	IndexName         *string   `json:"index_name"`
	Temperature       float64   `json:"temperature"`
	MaxTokens         *int      `json:"max_tokens"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasIndex reports whether the agent answers with retrieval.
func (a Agent) HasIndex() bool {
	return a.IndexName != nil && *a.IndexName != ""
}

// AgentInput is the payload for creating an agent.
type AgentInput struct {
	Name              string   `json:"name"`
	SystemInstruction string   `json:"system_instruction"`
	IndexName         *string  `json:"index_name,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	MaxTokens         *int     `json:"max_tokens,omitempty"`
}

// AgentPatch is a partial update. Nil fields are left unchanged; an empty
// IndexName removes the index binding.
type AgentPatch struct {
	Name              *string  `json:"name,omitempty"`
	SystemInstruction *string  `json:"system_instruction,omitempty"`
	IndexName         *string  `json:"index_name,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	MaxTokens         *int     `json:"max_tokens,omitempty"`
}

// AgentStore persists agent configurations. Implementations must be safe for
// concurrent use.
type AgentStore interface {
	Create(ctx context.Context, in AgentInput) (Agent, error)
	Get(ctx context.Context, id string) (Agent, error)
	List(ctx context.Context) ([]Agent, error)
	Update(ctx context.Context, id string, patch AgentPatch) (Agent, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteStore is an AgentStore backed by a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns ~/.agentrag/agents.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".agentrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "agents.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer connection avoids SQLITE_BUSY and keeps ":memory:" alive.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS agents (
    id                  TEXT    PRIMARY KEY,
    name                TEXT    NOT NULL,
    system_instruction  TEXT    NOT NULL,
    index_name          TEXT,
    temperature         REAL    NOT NULL,
    max_tokens          INTEGER,
    created_at          INTEGER NOT NULL,  -- Unix nanoseconds
    updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agents_created ON agents (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Create validates in and persists a new agent with a fresh id.
func (s *SQLiteStore) Create(ctx context.Context, in AgentInput) (Agent, error) {
	now := s.now()
	a := Agent{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(in.Name),
		SystemInstruction: in.SystemInstruction,
		IndexName:         normalizeIndex(in.IndexName),
		Temperature:       DefaultTemperature,
		MaxTokens:         in.MaxTokens,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.Temperature != nil {
		a.Temperature = *in.Temperature
	}
	if err := validate("store.create", a); err != nil {
		return Agent{}, err
	}

	const q = `INSERT INTO agents (id, name, system_instruction, index_name, temperature, max_tokens, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, a.ID, a.Name, a.SystemInstruction, nullString(a.IndexName),
		a.Temperature, nullInt(a.MaxTokens), a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano()); err != nil {
		return Agent{}, fmt.Errorf("store: create: %w", err)
	}
	return a, nil
}

// Get returns the agent with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Agent, error) {
	const q = `SELECT id, name, system_instruction, index_name, temperature, max_tokens, created_at, updated_at
FROM agents WHERE id = ?`
	a, err := scanAgent(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, notFound("store.get", id)
	}
	if err != nil {
		return Agent{}, fmt.Errorf("store: get %s: %w", id, err)
	}
	return a, nil
}

// List returns every agent ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]Agent, error) {
	const q = `SELECT id, name, system_instruction, index_name, temperature, max_tokens, created_at, updated_at
FROM agents ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return agents, nil
}

// Update applies patch to the agent with the given id and returns the result.
func (s *SQLiteStore) Update(ctx context.Context, id string, patch AgentPatch) (Agent, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return Agent{}, err
	}
	if patch.Name != nil {
		a.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.SystemInstruction != nil {
		a.SystemInstruction = *patch.SystemInstruction
	}
	if patch.IndexName != nil {
		a.IndexName = normalizeIndex(patch.IndexName)
	}
	if patch.Temperature != nil {
		a.Temperature = *patch.Temperature
	}
	if patch.MaxTokens != nil {
		a.MaxTokens = patch.MaxTokens
	}
	if err := validate("store.update", a); err != nil {
		return Agent{}, err
	}
	a.UpdatedAt = s.now()

	const q = `UPDATE agents SET name = ?, system_instruction = ?, index_name = ?, temperature = ?, max_tokens = ?, updated_at = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, a.Name, a.SystemInstruction, nullString(a.IndexName),
		a.Temperature, nullInt(a.MaxTokens), a.UpdatedAt.UnixNano(), id)
	if err != nil {
		return Agent{}, fmt.Errorf("store: update %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Agent{}, notFound("store.update", id)
	}
	return a, nil
}

// Delete removes the agent with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n == 0 {
		return notFound("store.delete", id)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (Agent, error) {
	var (
		a         Agent
		index     sql.NullString
		maxTokens sql.NullInt64
		created   int64
		updated   int64
	)
	if err := row.Scan(&a.ID, &a.Name, &a.SystemInstruction, &index, &a.Temperature, &maxTokens, &created, &updated); err != nil {
		return Agent{}, err
	}
	if index.Valid {
		a.IndexName = &index.String
	}
	if maxTokens.Valid {
		n := int(maxTokens.Int64)
		a.MaxTokens = &n
	}
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	return a, nil
}

func validate(op string, a Agent) error {
	switch {
	case a.Name == "":
		return apperr.Validation(op, "name is required")
	case strings.TrimSpace(a.SystemInstruction) == "":
		return apperr.Validation(op, "system_instruction is required")
	case a.Temperature < 0 || a.Temperature > 2:
		return apperr.Validation(op, "temperature must be between 0 and 2, got %g", a.Temperature)
	case a.MaxTokens != nil && *a.MaxTokens <= 0:
		return apperr.Validation(op, "max_tokens must be positive, got %d", *a.MaxTokens)
	}
	return nil
}

func notFound(op, id string) error {
	return &apperr.Error{
		Kind: apperr.KindNotFound,
		Op:   op,
		Msg:  fmt.Sprintf("Agent %s not found", id),
		Err:  ErrAgentNotFound,
	}
}

func normalizeIndex(name *string) *string {
	if name == nil {
		return nil
	}
	v := strings.TrimSpace(*name)
	if v == "" {
		return nil
	}
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
