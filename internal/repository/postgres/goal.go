package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/domain/repositories"
)

// PostgresGoalRepository implements the GoalRepository interface
type PostgresGoalRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewGoalRepository creates a new goal repository
func NewGoalRepository(config *RepositoryConfig) repositories.GoalRepository {
	return &PostgresGoalRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const goalColumns = `id, user_id, original_goal, chat_history, breakdown, model_used, thinking_process, created_at, updated_at`

// EnsureSchema creates the goals table and its history index
func (r *PostgresGoalRepository) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id          TEXT NOT NULL,
			original_goal    TEXT NOT NULL,
			chat_history     JSONB NOT NULL DEFAULT '[]'::jsonb,
			breakdown        JSONB NOT NULL DEFAULT '[]'::jsonb,
			model_used       TEXT,
			thinking_process TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %[1]s_user_updated_idx ON %[1]s (user_id, updated_at DESC);
	`, r.tables.Goals)

	if _, err := GetExecutor(ctx, r.pool).Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure goals schema: %w", err)
	}
	return nil
}

// Create inserts a new goal
func (r *PostgresGoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, original_goal, chat_history, breakdown, model_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, r.tables.Goals)

	err := GetExecutor(ctx, r.pool).QueryRow(ctx, query,
		g.UserID,
		g.Title,
		g.ChatHistory,
		g.Preview,
		g.ModelUsed,
		g.CreatedAt,
		g.UpdatedAt,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create goal: %w", err)
	}

	return nil
}

// GetByID retrieves a goal by ID
func (r *PostgresGoalRepository) GetByID(ctx context.Context, id string) (*goal.Goal, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, goalColumns, r.tables.Goals)

	var g goal.Goal
	err := GetExecutor(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&g.ID,
		&g.UserID,
		&g.Title,
		&g.ChatHistory,
		&g.Preview,
		&g.ModelUsed,
		&g.ThinkingProcess,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidTextError(err) {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("goal %s not found", id)}
		}
		return nil, fmt.Errorf("get goal: %w", err)
	}

	return &g, nil
}

// ListByUser retrieves all goals of a user, newest first
func (r *PostgresGoalRepository) ListByUser(ctx context.Context, userID string) ([]goal.Goal, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`, goalColumns, r.tables.Goals)

	rows, err := GetExecutor(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	goals := []goal.Goal{}
	for rows.Next() {
		var g goal.Goal
		if err := rows.Scan(
			&g.ID,
			&g.UserID,
			&g.Title,
			&g.ChatHistory,
			&g.Preview,
			&g.ModelUsed,
			&g.ThinkingProcess,
			&g.CreatedAt,
			&g.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}

	return goals, nil
}

// Update overwrites a goal; a nil preview keeps the stored breakdown
func (r *PostgresGoalRepository) Update(ctx context.Context, g *goal.Goal) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET original_goal = $1,
		    chat_history = $2,
		    breakdown = COALESCE($3::jsonb, breakdown),
		    updated_at = $4
		WHERE id = $5
	`, r.tables.Goals)

	result, err := GetExecutor(ctx, r.pool).Exec(ctx, query,
		g.Title,
		g.ChatHistory,
		g.Preview,
		g.UpdatedAt,
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}

	if result.RowsAffected() == 0 {
		return &domain.NotFoundError{Message: "Goal not found"}
	}

	return nil
}

// Delete removes a goal by ID
func (r *PostgresGoalRepository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Goals)

	if _, err := GetExecutor(ctx, r.pool).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

// DeleteByUser removes every goal of a user
func (r *PostgresGoalRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1`, r.tables.Goals)

	result, err := GetExecutor(ctx, r.pool).Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("clear goals: %w", err)
	}
	return result.RowsAffected(), nil
}
