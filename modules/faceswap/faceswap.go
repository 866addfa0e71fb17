// Package faceswap mounts the metered face swap endpoint.
package faceswap

import (
	"context"
	"encoding/base64"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/pkg/binder"
	"github.com/dmitrymomot/faceswap/pkg/file"
	"github.com/dmitrymomot/faceswap/svc/identity"
	"github.com/dmitrymomot/faceswap/svc/swap"
)

// Config limits uploads.
type Config struct {
	MaxImageBytes int64 `env:"FACESWAP_MAX_IMAGE_BYTES" envDefault:"10485760"`
}

// Processor runs a metered swap. *swap.Service implements it.
type Processor interface {
	Process(ctx context.Context, userID uuid.UUID, source, target []byte) (*swap.Result, error)
}

type Service struct {
	cfg          Config
	processor    Processor
	errorHandler handler.ErrorHandler
}

func NewService(cfg Config, processor Processor, errorHandler handler.ErrorHandler) *Service {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 << 20
	}
	return &Service{cfg: cfg, processor: processor, errorHandler: errorHandler}
}

func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/process", handler.Wrap(s.process,
		handler.WithBinders[ProcessRequest](
			binder.FormWithMaxMemory(2*s.cfg.MaxImageBytes),
			binder.Validate(),
		),
		handler.WithErrorHandler[ProcessRequest](s.errorHandler),
	))
	return r
}

type ProcessRequest struct {
	Source *multipart.FileHeader `file:"source_image" validate:"required"`
	Target *multipart.FileHeader `file:"target_image" validate:"required"`
}

// ProcessResponse carries the swapped image as base64.
type ProcessResponse struct {
	Image       string `json:"image_base64"`
	Consumption string `json:"consumption"`
}

var allowedTypes = []string{file.ImageJPEG, file.ImagePNG, file.ImageWebP}

func (s *Service) process(ctx handler.Context, req ProcessRequest) handler.Response {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return handler.Error(identity.ErrInvalidToken)
	}

	source, err := file.ReadImage(req.Source, s.cfg.MaxImageBytes, allowedTypes...)
	if err != nil {
		return handler.Error(err)
	}
	target, err := file.ReadImage(req.Target, s.cfg.MaxImageBytes, allowedTypes...)
	if err != nil {
		return handler.Error(err)
	}

	res, err := s.processor.Process(ctx, user.ID, source, target)
	if err != nil {
		return handler.Error(err)
	}

	return handler.JSON(ProcessResponse{
		Image:       base64.StdEncoding.EncodeToString(res.Image),
		Consumption: string(res.Consumption),
	})
}
