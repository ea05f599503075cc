package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reproserver/internal/model"
)

// GetExperiment loads a bundle's precomputed metadata by content hash.
func (s *Store) GetExperiment(ctx context.Context, hash string) (*model.Experiment, error) {
	var paramsJSON, pathsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT parameters, paths FROM experiments WHERE hash = $1`, hash,
	).Scan(&paramsJSON, &pathsJSON)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("store: experiment %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get experiment: %w", err)
	}

	exp := &model.Experiment{Hash: hash}
	if err := json.Unmarshal(paramsJSON, &exp.Parameters); err != nil {
		return nil, fmt.Errorf("store: decode experiment parameters: %w", err)
	}
	if err := json.Unmarshal(pathsJSON, &exp.Paths); err != nil {
		return nil, fmt.Errorf("store: decode experiment paths: %w", err)
	}
	return exp, nil
}

// PutExperiment creates the experiment row if it doesn't already exist.
// Experiments are immutable after first creation (spec §3), so an
// existing row is left untouched.
func (s *Store) PutExperiment(ctx context.Context, exp model.Experiment) error {
	paramsJSON, err := json.Marshal(exp.Parameters)
	if err != nil {
		return fmt.Errorf("store: encode parameters: %w", err)
	}
	pathsJSON, err := json.Marshal(exp.Paths)
	if err != nil {
		return fmt.Errorf("store: encode paths: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO experiments (hash, parameters, paths) VALUES ($1, $2, $3)
		 ON CONFLICT (hash) DO NOTHING`,
		exp.Hash, paramsJSON, pathsJSON)
	if err != nil {
		return fmt.Errorf("store: put experiment: %w", err)
	}
	return nil
}

// CreateUpload records a new bundle submission.
func (s *Store) CreateUpload(ctx context.Context, u model.Upload) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO uploads (experiment_hash, original_filename, submitter_address)
		 VALUES ($1, $2, $3) RETURNING id`,
		u.ExperimentHash, u.OriginalFilename, u.SubmitterAddress,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create upload: %w", err)
	}
	return id, nil
}

// CreateRun inserts a new run row in the submitted state, with its
// parameter values and input files.
func (s *Store) CreateRun(ctx context.Context, r model.Run) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: create run: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var extraConfig interface{}
	if len(r.ExtraConfig) > 0 {
		extraConfig = r.ExtraConfig
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO runs (experiment_hash, upload_id, extra_config)
		 VALUES ($1, $2, $3) RETURNING id`,
		r.ExperimentHash, r.UploadID, extraConfig,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create run: insert: %w", err)
	}

	for _, pv := range r.ParameterValues {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_parameter_values (run_id, name, value) VALUES ($1, $2, $3)`,
			id, pv.Name, pv.Value); err != nil {
			return 0, fmt.Errorf("store: create run: parameter value: %w", err)
		}
	}
	for _, in := range r.InputFiles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_input_files (run_id, name, hash, size) VALUES ($1, $2, $3, $4)`,
			id, in.Name, in.Hash, in.Size); err != nil {
			return 0, fmt.Errorf("store: create run: input file: %w", err)
		}
	}
	for _, p := range r.ExposedPorts {
		if _, err := tx.Exec(ctx,
			`INSERT INTO run_exposed_ports (run_id, port, scheme) VALUES ($1, $2, $3)`,
			id, p.Port, p.Scheme); err != nil {
			return 0, fmt.Errorf("store: create run: exposed port: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: create run: commit: %w", err)
	}
	return id, nil
}

// ErrNotFound is returned when a lookup by id or hash finds no row.
var ErrNotFound = fmt.Errorf("not found")

// GetRun loads a run's core row plus its parameter values, inputs and
// exposed ports. It does not load log lines or output files; use
// ListLogLines / ListOutputFiles for those.
func (s *Store) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	r := &model.Run{ID: id}
	var extraConfig []byte
	err := s.pool.QueryRow(ctx,
		`SELECT experiment_hash, upload_id, submitted_at, started_at, done_at,
		        progress_percent, progress_text, extra_config
		 FROM runs WHERE id = $1`, id,
	).Scan(&r.ExperimentHash, &r.UploadID, &r.SubmittedAt, &r.StartedAt, &r.DoneAt,
		&r.ProgressPercent, &r.ProgressText, &extraConfig)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("store: run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	r.ExtraConfig = extraConfig

	rows, err := s.pool.Query(ctx,
		`SELECT name, value FROM run_parameter_values WHERE run_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get run: parameter values: %w", err)
	}
	for rows.Next() {
		var pv model.ParameterValue
		if err := rows.Scan(&pv.Name, &pv.Value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: get run: scan parameter value: %w", err)
		}
		r.ParameterValues = append(r.ParameterValues, pv)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx,
		`SELECT name, hash, size FROM run_input_files WHERE run_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get run: input files: %w", err)
	}
	for rows.Next() {
		var in model.InputFile
		if err := rows.Scan(&in.Name, &in.Hash, &in.Size); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: get run: scan input file: %w", err)
		}
		r.InputFiles = append(r.InputFiles, in)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx,
		`SELECT port, scheme FROM run_exposed_ports WHERE run_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get run: exposed ports: %w", err)
	}
	for rows.Next() {
		var p model.ExposedPort
		if err := rows.Scan(&p.Port, &p.Scheme); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: get run: scan exposed port: %w", err)
		}
		r.ExposedPorts = append(r.ExposedPorts, p)
	}
	rows.Close()

	return r, nil
}

// ClearLogAndOutputs deletes a run's previous log lines and output
// files. Called once at the start of init_run_get_info (spec §4.1);
// a retry clears state exactly once.
func (s *Store) ClearLogAndOutputs(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: clear log and outputs: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM run_log_lines WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("store: clear log lines: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM run_output_files WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("store: clear output files: %w", err)
	}
	return tx.Commit(ctx)
}

// SetStarted sets started_at the first time it is called; subsequent
// calls are no-ops (run_started is idempotent per spec §4.1).
func (s *Store) SetStarted(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET started_at = now() WHERE id = $1 AND started_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("store: set started: %w", err)
	}
	return nil
}

// SetProgress updates the non-authoritative progress fields.
func (s *Store) SetProgress(ctx context.Context, id int64, percent int, text string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET progress_percent = $2, progress_text = $3 WHERE id = $1`,
		id, percent, text)
	if err != nil {
		return fmt.Errorf("store: set progress: %w", err)
	}
	return nil
}

// SetDone sets done_at the first time it is called (run_done is
// idempotent; once set it is never cleared, per spec §3 invariants).
func (s *Store) SetDone(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET done_at = now() WHERE id = $1 AND done_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("store: set done: %w", err)
	}
	return nil
}

// AppendLogLines appends lines to a run's log in order, preserving
// their relative order via one pgx batch of per-line inserts executed
// in sequence.
func (s *Store) AppendLogLines(ctx context.Context, id int64, lines []model.LogLine) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range lines {
		t := l.Time
		if t.IsZero() {
			t = time.Now().UTC()
		}
		batch.Queue(`INSERT INTO run_log_lines (run_id, time, text) VALUES ($1, $2, $3)`,
			id, t, l.Text)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range lines {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("store: append log lines: %w", err)
		}
	}
	return nil
}

// ListLogLines returns all log lines for a run in insertion order.
func (s *Store) ListLogLines(ctx context.Context, id int64) ([]model.LogLine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, time, text FROM run_log_lines WHERE run_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("store: list log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.Time, &l.Text); err != nil {
			return nil, fmt.Errorf("store: scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// RecordOutputFile records an output entry once its bytes have been
// uploaded to the object store.
func (s *Store) RecordOutputFile(ctx context.Context, id int64, out model.OutputFile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_output_files (run_id, name, hash, size) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id, name) DO UPDATE SET hash = EXCLUDED.hash, size = EXCLUDED.size`,
		id, out.Name, out.Hash, out.Size)
	if err != nil {
		return fmt.Errorf("store: record output file: %w", err)
	}
	return nil
}

// ListOutputFiles returns every output file recorded for a run.
func (s *Store) ListOutputFiles(ctx context.Context, id int64) ([]model.OutputFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, hash, size FROM run_output_files WHERE run_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("store: list output files: %w", err)
	}
	defer rows.Close()

	var outs []model.OutputFile
	for rows.Next() {
		var o model.OutputFile
		if err := rows.Scan(&o.Name, &o.Hash, &o.Size); err != nil {
			return nil, fmt.Errorf("store: scan output file: %w", err)
		}
		outs = append(outs, o)
	}
	return outs, rows.Err()
}
