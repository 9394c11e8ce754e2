// Package registry records fitted artifacts and their evaluations in a SQL
// database (SQLite by default, PostgreSQL via a postgres:// DSN).
package registry

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/creditrisk/evaluation"
	"github.com/YuminosukeSato/creditrisk/pipeline"
	"github.com/YuminosukeSato/creditrisk/pkg/errors"
	"github.com/YuminosukeSato/creditrisk/pkg/log"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	//go:embed sql/*
	ddl embed.FS

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("registry: record not found")
)

// ArtifactRecord is one row of the artifacts table.
type ArtifactRecord struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"-" json:"created_at"`
	Mode      string    `db:"mode" json:"mode"`
	Model     string    `db:"model" json:"model"`
	UseSMOTE  bool      `db:"use_smote" json:"use_smote"`
	NTrain    int       `db:"n_train" json:"n_train"`
	NFeatures int       `db:"n_features" json:"n_features"`
	Path      string    `db:"path" json:"path"`
	// Config is the pipeline config as JSON.
	Config string `db:"config" json:"config"`

	CreatedAtText string `db:"created_at" json:"-"`
}

// EvaluationRecord is one row of the evaluations table. Metric columns are
// NULL when they do not apply to the mode.
type EvaluationRecord struct {
	ID          string          `db:"id" json:"id"`
	ArtifactID  string          `db:"artifact_id" json:"artifact_id"`
	EvaluatedAt time.Time       `db:"-" json:"evaluated_at"`
	Mode        string          `db:"mode" json:"mode"`
	NTest       int             `db:"n_test" json:"n_test"`
	ROCAUC      sql.NullFloat64 `db:"roc_auc" json:"-"`
	F1          sql.NullFloat64 `db:"f1" json:"-"`
	AnomalyRate sql.NullFloat64 `db:"anomaly_rate" json:"-"`
	// Report is the full evaluation report as JSON.
	Report string `db:"report" json:"report"`

	EvaluatedAtText string `db:"evaluated_at" json:"-"`
}

// Registry is a handle to the registry database. It is safe for concurrent
// use.
type Registry struct {
	db     *sqlx.DB
	driver string
}

// DriverForDSN picks postgres for postgres:// and postgresql:// URLs and
// sqlite otherwise.
func DriverForDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open connects to dsn with driver and creates the tables if needed.
func Open(ctx context.Context, driver, dsn string) (*Registry, error) {
	if dsn == "" {
		return nil, errors.NewValidationError("dsn", "must not be empty", dsn)
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, errors.NewValidationError("driver", "must be sqlite or postgres", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s registry", driver)
	}
	if driver == DriverSQLite {
		// SQLite は単一ライター
		db.SetMaxOpenConns(1)
	}

	r := &Registry{db: db, driver: driver}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.GetLoggerWithName("registry").Debug("registry ready", "driver", driver)
	return r, nil
}

func (r *Registry) migrate(ctx context.Context) error {
	b, err := ddl.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to create registry schema")
		}
	}
	return nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// RecordArtifact inserts or replaces the record of a, saved at path.
func (r *Registry) RecordArtifact(ctx context.Context, a *pipeline.Artifact, path string) error {
	meta := a.Metadata()
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return errors.Wrap(err, "failed to encode pipeline config")
	}
	rec := ArtifactRecord{
		ID:            meta.ID,
		Mode:          meta.Mode,
		Model:         meta.Model,
		UseSMOTE:      meta.UseSMOTE,
		NTrain:        meta.NTrainSamples,
		NFeatures:     meta.NFeatures,
		Path:          path,
		Config:        string(cfg),
		CreatedAtText: formatTime(meta.CreatedAt),
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO artifacts (id, created_at, mode, model, use_smote, n_train, n_features, path, config)
		VALUES (:id, :created_at, :mode, :model, :use_smote, :n_train, :n_features, :path, :config)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			mode = excluded.mode,
			model = excluded.model,
			use_smote = excluded.use_smote,
			n_train = excluded.n_train,
			n_features = excluded.n_features,
			path = excluded.path,
			config = excluded.config
	`, rec)
	if err != nil {
		return errors.Wrapf(err, "failed to record artifact %s", rec.ID)
	}
	return nil
}

// RecordEvaluation stores rep and returns the new evaluation ID.
func (r *Registry) RecordEvaluation(ctx context.Context, rep *evaluation.Report) (string, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode report")
	}
	rec := EvaluationRecord{
		ID:              uuid.NewString(),
		ArtifactID:      rep.ArtifactID,
		Mode:            string(rep.Mode),
		NTest:           rep.NTest,
		Report:          string(body),
		EvaluatedAtText: formatTime(rep.EvaluatedAt),
	}
	if s := rep.Supervised; s != nil {
		rec.ROCAUC = sql.NullFloat64{Float64: s.ROCAUC, Valid: true}
		rec.F1 = sql.NullFloat64{Float64: s.F1, Valid: true}
	}
	if u := rep.Unsupervised; u != nil {
		rec.AnomalyRate = sql.NullFloat64{Float64: u.AnomalyRate, Valid: true}
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO evaluations (id, artifact_id, evaluated_at, mode, n_test, roc_auc, f1, anomaly_rate, report)
		VALUES (:id, :artifact_id, :evaluated_at, :mode, :n_test, :roc_auc, :f1, :anomaly_rate, :report)
	`, rec)
	if err != nil {
		return "", errors.Wrapf(err, "failed to record evaluation of %s", rep.ArtifactID)
	}
	return rec.ID, nil
}

// Artifact returns the record with the given ID or ErrNotFound.
func (r *Registry) Artifact(ctx context.Context, id string) (*ArtifactRecord, error) {
	var rec ArtifactRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(`
		SELECT id, created_at, mode, model, use_smote, n_train, n_features, path, config
		FROM artifacts WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "artifact %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load artifact %s", id)
	}
	if rec.CreatedAt, err = parseTime(rec.CreatedAtText); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Artifacts lists the most recent artifacts first. limit <= 0 means no limit.
func (r *Registry) Artifacts(ctx context.Context, limit int) ([]ArtifactRecord, error) {
	query := `
		SELECT id, created_at, mode, model, use_smote, n_train, n_features, path, config
		FROM artifacts ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var recs []ArtifactRecord
	if err := r.db.SelectContext(ctx, &recs, r.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "failed to list artifacts")
	}
	for i := range recs {
		t, err := parseTime(recs[i].CreatedAtText)
		if err != nil {
			return nil, err
		}
		recs[i].CreatedAt = t
	}
	return recs, nil
}

// Evaluations lists the evaluations of artifactID, oldest first.
func (r *Registry) Evaluations(ctx context.Context, artifactID string) ([]EvaluationRecord, error) {
	var recs []EvaluationRecord
	err := r.db.SelectContext(ctx, &recs, r.db.Rebind(`
		SELECT id, artifact_id, evaluated_at, mode, n_test, roc_auc, f1, anomaly_rate, report
		FROM evaluations WHERE artifact_id = ?
		ORDER BY evaluated_at, id
	`), artifactID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list evaluations of %s", artifactID)
	}
	for i := range recs {
		t, err := parseTime(recs[i].EvaluatedAtText)
		if err != nil {
			return nil, err
		}
		recs[i].EvaluatedAt = t
	}
	return recs, nil
}

// 時刻は辞書順で比較できる固定幅の UTC 文字列で保存する
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t, nil
}
