package prefs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nhle/commodity-alerts/internal/logging"
	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/store"
)

// ErrInvalid wraps validator failures that are not field errors.
var ErrInvalid = errors.New("invalid preferences")

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Remote is the part of the backend client that owns preferences.
type Remote interface {
	GetPreferences(ctx context.Context) (*model.AlertPreferences, error)
	UpdatePreferences(ctx context.Context, p model.AlertPreferences) (*model.AlertPreferences, error)
}

// Service reads and writes alert preferences, keeping a cached copy for
// offline use.
type Service struct {
	remote   Remote
	store    store.Store
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates a Service.
func NewService(remote Remote, s store.Store, logger *zap.Logger) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Service{
		remote:   remote,
		store:    s,
		validate: v,
		logger:   logging.OrNop(logger),
	}
}

// Get returns the backend's preferences. When the backend is unreachable it
// falls back to the cached copy, then to the defaults.
func (s *Service) Get(ctx context.Context) (model.AlertPreferences, error) {
	p, err := s.remote.GetPreferences(ctx)
	if err == nil && p != nil {
		p.Normalize()
		if err := s.store.SavePreferences(ctx, *p); err != nil {
			s.logger.Warn("caching preferences failed", zap.Error(err))
		}
		return *p, nil
	}
	if err != nil {
		s.logger.Warn("fetching preferences failed, using cache", zap.Error(err))
	}

	cached, cacheErr := s.store.LoadPreferences(ctx)
	if cacheErr != nil {
		return model.AlertPreferences{}, fmt.Errorf("loading cached preferences: %w", cacheErr)
	}
	if cached != nil {
		return *cached, nil
	}
	return model.DefaultPreferences(), nil
}

// Update normalizes and validates p, sends it to the backend and caches the
// backend's answer.
func (s *Service) Update(ctx context.Context, p model.AlertPreferences) (model.AlertPreferences, error) {
	p.Normalize()
	if err := s.Validate(p); err != nil {
		return model.AlertPreferences{}, err
	}

	saved, err := s.remote.UpdatePreferences(ctx, p)
	if err != nil {
		return model.AlertPreferences{}, fmt.Errorf("updating preferences: %w", err)
	}
	saved.Normalize()

	if err := s.store.SavePreferences(ctx, *saved); err != nil {
		s.logger.Warn("caching preferences failed", zap.Error(err))
	}
	s.logger.Info("preferences updated",
		zap.String("frequency", string(saved.Frequency)),
		zap.String("threshold", string(saved.Threshold)),
		zap.Int("commodities", len(saved.Commodities)),
	)
	return *saved, nil
}

// Validate checks p against its validation tags.
func (s *Service) Validate(p model.AlertPreferences) error {
	if err := s.validate.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed on '%s' validation", fe.Tag()),
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
