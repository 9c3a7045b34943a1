package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/creatorhub/copyscan/internal/models"
)

// LoadOriginalSignals returns the cached signals for key. ok is false when
// nothing is cached.
func (s *PostgresStore) LoadOriginalSignals(ctx context.Context, key models.SignalCacheKey) ([]models.FrameSignals, bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT frame_index, timestamp_secs, keyframe_hash, ocr_tokens, motion_defined, motion_direction, motion_magnitude
		 FROM original_frames WHERE original_ref = $1 AND profile = $2 AND interval_seconds = $3
		 ORDER BY frame_index`, key.OriginalRef, key.Profile, key.Interval)
	if err != nil {
		return nil, false, fmt.Errorf("load original frames: %w", err)
	}
	var frames []models.FrameSignals
	for rows.Next() {
		var idx int
		var f models.FrameSignals
		if err := rows.Scan(&idx, &f.Timestamp, &f.KeyframeHash, &f.OCRTokens,
			&f.Motion.Defined, &f.Motion.Direction, &f.Motion.Magnitude); err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("scan original frame: %w", err)
		}
		frames = append(frames, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("load original frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, false, nil
	}

	rows, err = s.pool.Query(ctx,
		`SELECT frame_index, confidence, bbox, embedding
		 FROM original_faces WHERE original_ref = $1 AND profile = $2 AND interval_seconds = $3
		 ORDER BY frame_index, face_index`, key.OriginalRef, key.Profile, key.Interval)
	if err != nil {
		return nil, false, fmt.Errorf("load original faces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var face models.FaceDetection
		var bbox []float32
		var emb *pgvector.Vector
		if err := rows.Scan(&idx, &face.Confidence, &bbox, &emb); err != nil {
			return nil, false, fmt.Errorf("scan original face: %w", err)
		}
		if idx < 0 || idx >= len(frames) {
			continue
		}
		copy(face.BBox[:], bbox)
		if emb != nil {
			face.Embedding = emb.Slice()
		}
		frames[idx].Faces = append(frames[idx].Faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("load original faces: %w", err)
	}
	return frames, true, nil
}

// SaveOriginalSignals replaces the cached signals for key.
func (s *PostgresStore) SaveOriginalSignals(ctx context.Context, key models.SignalCacheKey, frames []models.FrameSignals) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM original_frames WHERE original_ref = $1 AND profile = $2 AND interval_seconds = $3`,
		key.OriginalRef, key.Profile, key.Interval); err != nil {
		return fmt.Errorf("clear original frames: %w", err)
	}

	batch := &pgx.Batch{}
	for i, f := range frames {
		tokens := f.OCRTokens
		if tokens == nil {
			tokens = []string{}
		}
		batch.Queue(
			`INSERT INTO original_frames (original_ref, profile, interval_seconds, frame_index, timestamp_secs,
				keyframe_hash, ocr_tokens, motion_defined, motion_direction, motion_magnitude)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			key.OriginalRef, key.Profile, key.Interval, i, f.Timestamp, f.KeyframeHash, tokens,
			f.Motion.Defined, f.Motion.Direction, f.Motion.Magnitude)
		for j, face := range f.Faces {
			var emb *pgvector.Vector
			if len(face.Embedding) > 0 {
				v := pgvector.NewVector(face.Embedding)
				emb = &v
			}
			batch.Queue(
				`INSERT INTO original_faces (original_ref, profile, interval_seconds, frame_index, face_index, confidence, bbox, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				key.OriginalRef, key.Profile, key.Interval, i, j, face.Confidence, face.BBox[:], emb)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert original signals: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit original signals: %w", err)
	}
	return nil
}

// DeleteOriginalSignals drops every cached interval and profile of an original.
func (s *PostgresStore) DeleteOriginalSignals(ctx context.Context, ref string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM original_frames WHERE original_ref = $1`, ref); err != nil {
		return fmt.Errorf("delete original signals: %w", err)
	}
	return nil
}
