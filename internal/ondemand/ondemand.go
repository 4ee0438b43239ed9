// Package ondemand answers single-locator fetch requests with the matches
// found for that slot.
package ondemand

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/locator"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/match"
	"github.com/JakeFAU/ncaa-match-pipeline/internal/producer"
)

// Request selects one scoreboard slot.
type Request struct {
	Gender     string `json:"gender" validate:"required,oneof=male female"`
	Division   string `json:"division" validate:"required,oneof=d1 d2 d3"`
	TargetDate string `json:"target_date" validate:"required,datetime=2006-01-02"`
}

// Response mirrors the invocation result: a status code and a JSON body.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Runner fetches and publishes the matches for one locator.
type Runner interface {
	RunSingle(ctx context.Context, loc locator.Locator) ([]match.Match, producer.Summary, error)
}

// Service validates requests and runs them.
type Service struct {
	runner    Runner
	validator *validator.Validate
	logger    *zap.Logger
}

// New builds a Service.
func New(runner Runner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		runner:    runner,
		validator: validator.New(),
		logger:    logger.Named("ondemand"),
	}
}

func (r Request) normalized() Request {
	return Request{
		Gender:     strings.ToLower(strings.TrimSpace(r.Gender)),
		Division:   strings.ToLower(strings.TrimSpace(r.Division)),
		TargetDate: strings.TrimSpace(r.TargetDate),
	}
}

// Locator validates req and converts it into a locator. Gender and division
// are matched case-insensitively.
func (s *Service) Locator(ctx context.Context, req Request) (locator.Locator, error) {
	req = req.normalized()
	if err := s.validator.StructCtx(ctx, req); err != nil {
		return locator.Locator{}, faults.Validationf("invalid request: %v", err)
	}
	date, err := locator.ParseDate(req.TargetDate)
	if err != nil {
		return locator.Locator{}, err
	}
	return locator.New(req.Gender, req.Division, date)
}

// Fetch returns the matches for req.
func (s *Service) Fetch(ctx context.Context, req Request) ([]match.Match, error) {
	loc, err := s.Locator(ctx, req)
	if err != nil {
		return nil, err
	}
	matches, summary, err := s.runner.RunSingle(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", loc, err)
	}
	s.logger.Info("on-demand fetch complete",
		zap.String("locator", loc.String()),
		zap.Int("matches", summary.Matches),
		zap.Int("emitted", summary.Emitted),
	)
	return matches, nil
}

// Handle runs req and renders the result. Any failure becomes a 500 whose
// body is a JSON string describing the error.
func (s *Service) Handle(ctx context.Context, req Request) Response {
	matches, err := s.Fetch(ctx, req)
	if err != nil {
		s.logger.Warn("on-demand fetch failed", zap.Error(err))
		return errorResponse(err)
	}
	body, err := sonic.Marshal(matches)
	if err != nil {
		return errorResponse(fmt.Errorf("encode matches: %w", err))
	}
	return Response{StatusCode: http.StatusOK, Body: string(body)}
}

func errorResponse(err error) Response {
	body, mErr := sonic.Marshal(fmt.Sprintf("An error occurred: %v", err))
	if mErr != nil {
		body = []byte(`"An error occurred"`)
	}
	return Response{StatusCode: http.StatusInternalServerError, Body: string(body)}
}
