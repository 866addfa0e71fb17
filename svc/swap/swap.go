// Package swap runs the metered face swap operation.
package swap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/faceswap/pkg/logger"
	"github.com/dmitrymomot/faceswap/svc/entitlement"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

var (
	ErrEmptyImage = errors.New("swap: source or target image is empty")
	ErrSwapFailed = errors.New("swap: processing failed")
)

// Swapper replaces the face in target with the face from source.
type Swapper interface {
	Swap(ctx context.Context, source, target []byte) ([]byte, error)
}

// Simulated is a stand-in Swapper that derives a deterministic output from
// the first bytes of both inputs.
type Simulated struct{}

func (Simulated) Swap(_ context.Context, source, target []byte) ([]byte, error) {
	if len(source) == 0 || len(target) == 0 {
		return nil, ErrEmptyImage
	}
	var out bytes.Buffer
	out.WriteString("simulated_output_")
	out.Write(source[:min(10, len(source))])
	out.WriteByte('_')
	out.Write(target[:min(10, len(target))])
	return out.Bytes(), nil
}

// Result is a completed swap.
type Result struct {
	Image       []byte
	Consumption entitlement.Consumption
	User        *identity.User
}

// Service meters swaps: it reserves a unit, runs the swapper and commits the
// unit only when the swap succeeded.
type Service struct {
	meter   *entitlement.Meter
	swapper Swapper
	logger  *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(meter *entitlement.Meter, swapper Swapper, opts ...ServiceOption) *Service {
	s := &Service{
		meter:   meter,
		swapper: swapper,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process swaps faces for userID. A denial is returned as a
// *entitlement.LimitError.
func (s *Service) Process(ctx context.Context, userID uuid.UUID, source, target []byte) (*Result, error) {
	if len(source) == 0 || len(target) == 0 {
		return nil, ErrEmptyImage
	}

	res, err := s.meter.Reserve(ctx, userID)
	if err != nil {
		return nil, err
	}
	// no-op once committed; frees the user's lock if Swap fails or panics
	defer res.Release()

	img, err := s.swapper.Swap(ctx, source, target)
	if err != nil {
		s.logger.ErrorContext(ctx, "face swap failed",
			logger.Component("swap"),
			logger.UserID(userID),
			logger.Error(err),
		)
		if errors.Is(err, ErrEmptyImage) {
			return nil, err
		}
		return nil, errors.Join(ErrSwapFailed, err)
	}

	user, err := res.Commit(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "face swap processed",
		logger.Component("swap"),
		logger.UserID(userID),
		slog.String("consumption", string(res.Decision.Consumption)),
	)
	return &Result{Image: img, Consumption: res.Decision.Consumption, User: user}, nil
}
