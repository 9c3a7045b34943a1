package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creatorhub/copyscan/internal/config"
	"github.com/creatorhub/copyscan/internal/models"
)

// ErrNotFound is returned when a referenced row or object does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Matches ---

const matchColumns = `id, original_ref, candidate_url, platform, similarity_score, data_quality,
	aligned_pairs, original_frames, candidate_frames, breakdown, intervals, created_at`

func (s *PostgresStore) CreateMatch(ctx context.Context, m *models.CopyrightMatch) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	breakdown, err := json.Marshal(m.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	intervals := m.Intervals
	if intervals == nil {
		intervals = []float64{}
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO copyright_matches (id, original_ref, candidate_url, platform, similarity_score, data_quality,
			aligned_pairs, original_frames, candidate_frames, breakdown, intervals)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING created_at`,
		m.ID, m.OriginalRef, m.CandidateURL, m.Platform, m.SimilarityScore, string(m.DataQuality),
		m.AlignedPairs, m.OriginalFrames, m.CandidateFrames, breakdown, intervals,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	return nil
}

// GetMatch returns the match with its actions, most recent first. A missing
// match yields (nil, nil).
func (s *PostgresStore) GetMatch(ctx context.Context, id uuid.UUID) (*models.CopyrightMatch, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM copyright_matches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	m.Actions, err = s.ListActions(ctx, id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMatches pages through matches, newest first, optionally restricted to
// one original.
func (s *PostgresStore) ListMatches(ctx context.Context, originalRef string, limit, offset int) ([]models.CopyrightMatch, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	where := ""
	args := []any{}
	if originalRef != "" {
		where = "WHERE original_ref = $1"
		args = append(args, originalRef)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM copyright_matches "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM copyright_matches %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		matchColumns, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var matches []models.CopyrightMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list matches: %w", err)
	}
	if err := s.attachActions(ctx, matches); err != nil {
		return nil, 0, err
	}
	return matches, total, nil
}

// attachActions loads the actions of all matches in one query.
func (s *PostgresStore) attachActions(ctx context.Context, matches []models.CopyrightMatch) error {
	if len(matches) == 0 {
		return nil
	}
	ids := make([]string, len(matches))
	index := make(map[uuid.UUID]int, len(matches))
	for i, m := range matches {
		ids[i] = m.ID.String()
		index[m.ID] = i
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+actionColumns+` FROM copyright_actions
		 WHERE match_id = ANY($1::uuid[]) ORDER BY seq DESC`, ids)
	if err != nil {
		return fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return fmt.Errorf("scan action: %w", err)
		}
		i := index[a.MatchID]
		matches[i].Actions = append(matches[i].Actions, a)
	}
	return rows.Err()
}

func scanMatch(row pgx.Row) (*models.CopyrightMatch, error) {
	var m models.CopyrightMatch
	var quality string
	var breakdown []byte
	if err := row.Scan(&m.ID, &m.OriginalRef, &m.CandidateURL, &m.Platform, &m.SimilarityScore, &quality,
		&m.AlignedPairs, &m.OriginalFrames, &m.CandidateFrames, &breakdown, &m.Intervals, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.DataQuality = models.DataQuality(quality)
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &m.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
	}
	return &m, nil
}

// --- Actions ---

// CreateAction appends an action. Existing actions are never modified.
func (s *PostgresStore) CreateAction(ctx context.Context, a *models.CopyrightAction) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO copyright_actions (id, match_id, action_type, status, document_url, detail)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		a.ID, a.MatchID, string(a.ActionType), string(a.Status), a.DocumentURL, a.Detail,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

const actionColumns = `id, match_id, action_type, status, document_url, detail, created_at`

// ListActions returns a match's actions, most recent first.
func (s *PostgresStore) ListActions(ctx context.Context, matchID uuid.UUID) ([]models.CopyrightAction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+actionColumns+` FROM copyright_actions WHERE match_id = $1 ORDER BY seq DESC`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []models.CopyrightAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func scanAction(row pgx.Row) (models.CopyrightAction, error) {
	var a models.CopyrightAction
	var actionType, status string
	if err := row.Scan(&a.ID, &a.MatchID, &actionType, &status, &a.DocumentURL, &a.Detail, &a.CreatedAt); err != nil {
		return a, err
	}
	a.ActionType = models.ActionType(actionType)
	a.Status = models.ActionStatus(status)
	return a, nil
}
