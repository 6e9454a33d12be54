// Package goals implements the saved-goal history behind the /goals and
// /history endpoints.
package goals

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"goalbreaker/internal/config"
	"goalbreaker/internal/domain"
	"goalbreaker/internal/domain/models/goal"
	"goalbreaker/internal/domain/repositories"
	"goalbreaker/internal/domain/services"
	"goalbreaker/internal/httputil"
)

// ModelUsed is recorded on every goal: conversations mix several models
const ModelUsed = "Multi-Agent"

var emptyArray = json.RawMessage("[]")

// goalService implements the GoalService interface
type goalService struct {
	repo      repositories.GoalRepository
	txManager repositories.TransactionManager
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new goal service
func NewService(
	repo repositories.GoalRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) services.GoalService {
	return &goalService{
		repo:      repo,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateGoal stores a new conversation
func (s *goalService) CreateGoal(ctx context.Context, userID string, req *services.SaveGoalRequest) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	if err := s.validateSaveRequest(req); err != nil {
		return "", &domain.ValidationError{Message: err.Error()}
	}

	preview := emptyArray
	if req.Preview.Set() {
		preview = req.Preview.Value
	}

	modelUsed := ModelUsed
	now := s.now().UTC()
	g := &goal.Goal{
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		ChatHistory: req.ChatHistory,
		Preview:     preview,
		ModelUsed:   &modelUsed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, g); err != nil {
		return "", err
	}

	s.logger.Info("goal created",
		"id", g.ID,
		"user_id", userID,
		"title", g.Title,
	)

	return g.ID, nil
}

// UpdateGoal overwrites title and history; the preview only when provided
func (s *goalService) UpdateGoal(ctx context.Context, goalID string, req *services.SaveGoalRequest) error {
	if !isGoalID(goalID) {
		return &domain.NotFoundError{Message: "Goal not found"}
	}
	if err := s.validateSaveRequest(req); err != nil {
		return &domain.ValidationError{Message: err.Error()}
	}

	g := &goal.Goal{
		ID:          goalID,
		Title:       strings.TrimSpace(req.Title),
		ChatHistory: req.ChatHistory,
		UpdatedAt:   s.now().UTC(),
	}
	if req.Preview.Set() && !isEmptyArray(req.Preview.Value) {
		g.Preview = req.Preview.Value
	}

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetByID(txCtx, goalID); err != nil {
			return err
		}
		return s.repo.Update(txCtx, g)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("goal updated", "id", goalID, "preview_replaced", g.Preview != nil)
	return nil
}

// History lists a user's conversations, newest first
func (s *goalService) History(ctx context.Context, userID string) ([]goal.HistoryItem, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	stored, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]goal.HistoryItem, 0, len(stored))
	for _, g := range stored {
		items = append(items, toHistoryItem(g))
	}
	return items, nil
}

// DeleteGoal removes one conversation. Unknown ids are ignored.
func (s *goalService) DeleteGoal(ctx context.Context, goalID string) error {
	if !isGoalID(goalID) {
		return nil
	}
	if err := s.repo.Delete(ctx, goalID); err != nil {
		return err
	}

	s.logger.Info("goal deleted", "id", goalID)
	return nil
}

// ClearHistory removes every conversation of a user
func (s *goalService) ClearHistory(ctx context.Context, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.Info("history cleared", "user_id", userID, "deleted", n)
	return nil
}

func toHistoryItem(g goal.Goal) goal.HistoryItem {
	model := ModelUsed
	if g.ModelUsed != nil && *g.ModelUsed != "" {
		model = *g.ModelUsed
	}

	item := goal.HistoryItem{
		ID:          g.ID,
		Goal:        g.Title,
		Model:       model,
		Date:        g.UpdatedAt,
		Preview:     g.Preview,
		Thinking:    g.ThinkingProcess,
		ChatHistory: g.ChatHistory,
	}
	if isNull(item.Preview) {
		item.Preview = emptyArray
	}
	if isNull(item.ChatHistory) {
		item.ChatHistory = emptyArray
	}
	return item
}

// validateSaveRequest validates a create or update body
func (s *goalService) validateSaveRequest(req *services.SaveGoalRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.Required,
			validation.RuneLength(1, config.MaxGoalTitleLength),
			validation.By(notBlank),
		),
		validation.Field(&req.ChatHistory, validation.By(jsonArray(true))),
		validation.Field(&req.Preview, validation.By(optionalArray)),
	)
}

func validateUserID(userID string) error {
	err := validation.Validate(userID,
		validation.Required.Error("user id is required"),
		validation.Length(1, 200),
	)
	if err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("user_id: %v", err)}
	}
	return nil
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// jsonArray checks that a raw value is a JSON array
func jsonArray(required bool) validation.RuleFunc {
	return func(value interface{}) error {
		raw, _ := value.(json.RawMessage)
		if isNull(raw) {
			if required {
				return errors.New("is required")
			}
			return nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return errors.New("must be a JSON array")
		}
		return nil
	}
}

func optionalArray(value interface{}) error {
	opt, ok := value.(httputil.OptionalJSON)
	if !ok || !opt.Set() {
		return nil
	}
	return jsonArray(false)(opt.Value)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isEmptyArray(raw json.RawMessage) bool {
	var items []json.RawMessage
	return json.Unmarshal(raw, &items) == nil && len(items) == 0
}

func isGoalID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
