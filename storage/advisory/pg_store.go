package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"decleanup-backend/core/dmrv"
)

// PGStore persists advisories and verifier decisions in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects and initializes the schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS dmrv_advisories (
  submission_id BIGINT PRIMARY KEY,
  decision TEXT NOT NULL,
  confidence DOUBLE PRECISION NOT NULL,
  before_analysis JSONB,
  after_analysis JSONB,
  reasoning TEXT,
  model_hash TEXT,
  result_hash TEXT,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS verifier_decisions (
  id BIGSERIAL PRIMARY KEY,
  submission_id BIGINT NOT NULL,
  verifier TEXT NOT NULL,
  action TEXT NOT NULL,
  level INT NOT NULL DEFAULT 0,
  tx_hash TEXT,
  note TEXT,
  decided_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verifier_decisions_submission ON verifier_decisions(submission_id, decided_at);
CREATE INDEX IF NOT EXISTS idx_dmrv_advisories_decision ON dmrv_advisories(decision, created_at);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PGStore) SaveAdvisory(ctx context.Context, adv dmrv.Advisory) error {
	beforeJSON, err := json.Marshal(adv.Before)
	if err != nil {
		return err
	}
	afterJSON, err := json.Marshal(adv.After)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO dmrv_advisories
  (submission_id, decision, confidence, before_analysis, after_analysis, reasoning, model_hash, result_hash, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (submission_id) DO UPDATE SET
  decision = EXCLUDED.decision,
  confidence = EXCLUDED.confidence,
  before_analysis = EXCLUDED.before_analysis,
  after_analysis = EXCLUDED.after_analysis,
  reasoning = EXCLUDED.reasoning,
  model_hash = EXCLUDED.model_hash,
  result_hash = EXCLUDED.result_hash,
  created_at = EXCLUDED.created_at`,
		adv.SubmissionID, string(adv.Decision), adv.Confidence,
		beforeJSON, afterJSON, adv.Reasoning, adv.ModelHash, adv.ResultHash, adv.CreatedAt)
	if err != nil {
		return fmt.Errorf("save advisory %d: %w", adv.SubmissionID, err)
	}
	return nil
}

func (s *PGStore) GetAdvisory(ctx context.Context, submissionID uint64) (dmrv.Advisory, error) {
	row := s.pool.QueryRow(ctx, `
SELECT submission_id, decision, confidence, before_analysis, after_analysis, reasoning, model_hash, result_hash, created_at
FROM dmrv_advisories WHERE submission_id = $1`, submissionID)
	adv, err := scanAdvisory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return dmrv.Advisory{}, ErrAdvisoryNotFound
	}
	return adv, err
}

func (s *PGStore) ListPendingReview(ctx context.Context, limit int) ([]dmrv.Advisory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT a.submission_id, a.decision, a.confidence, a.before_analysis, a.after_analysis, a.reasoning, a.model_hash, a.result_hash, a.created_at
FROM dmrv_advisories a
LEFT JOIN verifier_decisions d ON d.submission_id = a.submission_id
WHERE a.decision = $1 AND d.id IS NULL
ORDER BY a.created_at ASC
LIMIT $2`, string(dmrv.ManualReview), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dmrv.Advisory
	for rows.Next() {
		adv, err := scanAdvisory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, adv)
	}
	return out, rows.Err()
}

func (s *PGStore) RecordDecision(ctx context.Context, dec VerifierDecision) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO verifier_decisions (submission_id, verifier, action, level, tx_hash, note, decided_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		dec.SubmissionID, dec.Verifier, dec.Action, dec.Level, dec.TxHash, dec.Note, dec.DecidedAt)
	if err != nil {
		return fmt.Errorf("record decision for %d: %w", dec.SubmissionID, err)
	}
	return nil
}

func (s *PGStore) ListDecisions(ctx context.Context, submissionID uint64) ([]VerifierDecision, error) {
	rows, err := s.pool.Query(ctx, `
SELECT submission_id, verifier, action, level, tx_hash, note, decided_at
FROM verifier_decisions WHERE submission_id = $1 ORDER BY decided_at ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VerifierDecision
	for rows.Next() {
		var dec VerifierDecision
		if err := rows.Scan(&dec.SubmissionID, &dec.Verifier, &dec.Action, &dec.Level, &dec.TxHash, &dec.Note, &dec.DecidedAt); err != nil {
			return nil, err
		}
		out = append(out, dec)
	}
	return out, rows.Err()
}

func (s *PGStore) Close() {
	s.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdvisory(row rowScanner) (dmrv.Advisory, error) {
	var (
		adv        dmrv.Advisory
		decision   string
		beforeJSON []byte
		afterJSON  []byte
	)
	err := row.Scan(&adv.SubmissionID, &decision, &adv.Confidence,
		&beforeJSON, &afterJSON, &adv.Reasoning, &adv.ModelHash, &adv.ResultHash, &adv.CreatedAt)
	if err != nil {
		return dmrv.Advisory{}, err
	}
	adv.Decision = dmrv.Decision(decision)
	if len(beforeJSON) > 0 {
		if err := json.Unmarshal(beforeJSON, &adv.Before); err != nil {
			return dmrv.Advisory{}, fmt.Errorf("decode before analysis: %w", err)
		}
	}
	if len(afterJSON) > 0 {
		if err := json.Unmarshal(afterJSON, &adv.After); err != nil {
			return dmrv.Advisory{}, fmt.Errorf("decode after analysis: %w", err)
		}
	}
	return adv, nil
}
