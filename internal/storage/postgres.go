// internal/storage/postgres.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/skalibog/patternscope/internal/analysis/quality"
	"github.com/skalibog/patternscope/internal/config"
	"github.com/skalibog/patternscope/pkg/models"
)

// PatternStatsRepository статистика паттернов и журнал прогнозов
type PatternStatsRepository interface {
	RecordPatterns(ctx context.Context, records []models.PatternRecord, seenAt time.Time) error
	TopPatterns(ctx context.Context, limit int) ([]models.PatternStat, error)
	InsertPrediction(ctx context.Context, p *models.PredictionLog) error
	Close() error
}

// Schema создает таблицы статистики паттернов и прогнозов
const Schema = `
CREATE TABLE IF NOT EXISTS pattern_stats (
	pattern_hash TEXT PRIMARY KEY,
	count        INTEGER NOT NULL DEFAULT 0,
	correct      INTEGER NOT NULL DEFAULT 0,
	precision    DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_seen    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS predictions (
	id           BIGSERIAL PRIMARY KEY,
	ts           TIMESTAMPTZ NOT NULL,
	symbol       TEXT NOT NULL,
	horizon      TEXT NOT NULL,
	label        TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	score        DOUBLE PRECISION NOT NULL DEFAULT 0,
	probs        JSONB,
	gate_passed  BOOLEAN NOT NULL DEFAULT FALSE,
	pattern_hash TEXT NOT NULL,
	features     JSONB
);

CREATE INDEX IF NOT EXISTS idx_predictions_symbol_ts ON predictions (symbol, ts DESC);
`

const upsertPatternQuery = `
	INSERT INTO pattern_stats (pattern_hash, count, correct, precision, last_seen)
	VALUES ($1, 1, 0, $2, $3)
	ON CONFLICT (pattern_hash) DO UPDATE SET
		count     = pattern_stats.count + 1,
		last_seen = EXCLUDED.last_seen,
		precision = pattern_stats.correct::DOUBLE PRECISION / (pattern_stats.count + 1)
`

const topPatternsQuery = `
	SELECT pattern_hash, count, correct, precision, last_seen
	FROM pattern_stats
	WHERE count <> 0
	ORDER BY precision DESC, count DESC
	LIMIT $1
`

const insertPredictionQuery = `
	INSERT INTO predictions (
		ts, symbol, horizon, label, confidence, score,
		probs, gate_passed, pattern_hash, features
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// PostgresRepository реализует PatternStatsRepository поверх PostgreSQL
type PostgresRepository struct {
	db          *sqlx.DB
	minAccuracy float64
}

// NewPostgresRepository подключается к базе и применяет схему
func NewPostgresRepository(ctx context.Context, cfg config.PostgresConfig, minAccuracy float64) (*PostgresRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка применения схемы: %w", err)
	}

	return NewPostgresRepositoryFromDB(db, minAccuracy), nil
}

// NewPostgresRepositoryFromDB создает репозиторий поверх готового соединения
func NewPostgresRepositoryFromDB(db *sqlx.DB, minAccuracy float64) *PostgresRepository {
	return &PostgresRepository{
		db:          db,
		minAccuracy: minAccuracy,
	}
}

// RecordPatterns обновляет статистику паттернов с точностью не ниже порога.
// Существующая запись получает count+1 и precision = correct/(count+1), новая создается с count=1.
func (r *PostgresRepository) RecordPatterns(ctx context.Context, records []models.PatternRecord, seenAt time.Time) error {
	eligible := EligiblePatterns(records, r.minAccuracy)
	if len(eligible) == 0 {
		return nil
	}

	// Начинаем транзакцию
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	for _, p := range eligible {
		if _, err := tx.ExecContext(ctx, upsertPatternQuery, p.PatternName, p.AccuracyRate, seenAt.UTC()); err != nil {
			return fmt.Errorf("ошибка обновления статистики %s: %w", p.PatternName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// TopPatterns возвращает лучшие паттерны с оценкой качества
func (r *PostgresRepository) TopPatterns(ctx context.Context, limit int) ([]models.PatternStat, error) {
	var stats []models.PatternStat
	if err := r.db.SelectContext(ctx, &stats, topPatternsQuery, limit); err != nil {
		return nil, fmt.Errorf("ошибка получения статистики паттернов: %w", err)
	}
	return RateStats(stats), nil
}

// InsertPrediction записывает прогноз в журнал
func (r *PostgresRepository) InsertPrediction(ctx context.Context, p *models.PredictionLog) error {
	probs, err := json.Marshal(p.Probs)
	if err != nil {
		return fmt.Errorf("ошибка сериализации вероятностей: %w", err)
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("ошибка сериализации признаков: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertPredictionQuery,
		p.TS.UTC(), p.Symbol, p.Horizon, p.Label, p.Confidence, p.Score,
		string(probs), p.GatePassed, p.PatternHash, string(features),
	)
	if err != nil {
		return fmt.Errorf("ошибка записи прогноза: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой данных
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// EligiblePatterns отбирает паттерны с точностью не ниже minAccuracy
func EligiblePatterns(records []models.PatternRecord, minAccuracy float64) []models.PatternRecord {
	var out []models.PatternRecord
	for _, p := range records {
		if p.AccuracyRate >= minAccuracy {
			out = append(out, p)
		}
	}
	return out
}

// RateStats проставляет оценку качества каждой записи
func RateStats(stats []models.PatternStat) []models.PatternStat {
	if stats == nil {
		return []models.PatternStat{}
	}
	for i := range stats {
		stats[i].QualityRating = quality.Rating(stats[i].Count, stats[i].Precision)
	}
	return stats
}
