// Package payments mounts the card checkout, crypto transfer and payment
// status endpoints.
package payments

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/pkg/binder"
	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// Service exposes billing.Service over HTTP. Every route expects the
// authenticated user in the request context.
type Service struct {
	billing      billing.Service
	errorHandler handler.ErrorHandler
}

func NewService(svc billing.Service, errorHandler handler.ErrorHandler) *Service {
	return &Service{billing: svc, errorHandler: errorHandler}
}

func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	cardCheckout := handler.Wrap(s.cardCheckout,
		handler.WithBinders[PlanRequest](binder.JSON(), binder.Validate()),
		handler.WithErrorHandler[PlanRequest](s.errorHandler),
	)
	cardVerify := handler.Wrap(s.cardVerify,
		handler.WithBinders[VerifyRequest](binder.Query(), binder.Validate()),
		handler.WithErrorHandler[VerifyRequest](s.errorHandler),
	)
	cryptoInitiate := handler.Wrap(s.cryptoInitiate,
		handler.WithBinders[PlanRequest](binder.JSON(), binder.Validate()),
		handler.WithErrorHandler[PlanRequest](s.errorHandler),
	)
	cryptoConfirm := handler.Wrap(s.cryptoConfirm,
		handler.WithBinders[ConfirmRequest](binder.Query(), binder.Validate()),
		handler.WithErrorHandler[ConfirmRequest](s.errorHandler),
	)

	r.Post("/card/checkout", cardCheckout)
	r.Get("/card/verify", cardVerify)
	r.Post("/crypto/initiate", cryptoInitiate)
	r.Post("/crypto/confirm", cryptoConfirm)

	// legacy paths
	r.Post("/stripe/create-checkout-session", cardCheckout)
	r.Get("/stripe/verify-payment", cardVerify)
	r.Post("/usdt/initiate-payment", cryptoInitiate)
	r.Post("/usdt/confirm-payment", cryptoConfirm)

	r.Get("/status", handler.Wrap(s.status,
		handler.WithErrorHandler[struct{}](s.errorHandler),
	))

	return r
}

type PlanRequest struct {
	Plan string `json:"payment_type" validate:"required,oneof=one_time monthly"`
}

type VerifyRequest struct {
	SessionID string `query:"session_id" validate:"required,max=255"`
}

// ConfirmRequest carries the attempt and the on-chain transaction hash.
// A malformed attempt id fails validation; the billing service checks the
// hash format.
type ConfirmRequest struct {
	AttemptID       string `query:"payment_attempt_id" validate:"required,uuid"`
	TransactionHash string `query:"transaction_hash" validate:"required"`
}

func currentUser(ctx handler.Context) (*identity.User, error) {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return nil, identity.ErrInvalidToken
	}
	return user, nil
}

func (s *Service) cardCheckout(ctx handler.Context, req PlanRequest) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	checkout, err := s.billing.InitiateCardPayment(ctx, user.ID, billing.Plan(req.Plan))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(checkout, handler.WithJSONStatus(http.StatusCreated))
}

func (s *Service) cardVerify(ctx handler.Context, req VerifyRequest) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	status, err := s.billing.VerifyCardPayment(ctx, user.ID, req.SessionID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(status)
}

func (s *Service) cryptoInitiate(ctx handler.Context, req PlanRequest) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	transfer, err := s.billing.InitiateCryptoTransfer(ctx, user.ID, billing.Plan(req.Plan))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(transfer, handler.WithJSONStatus(http.StatusCreated))
}

func (s *Service) cryptoConfirm(ctx handler.Context, req ConfirmRequest) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	attemptID, err := uuid.Parse(req.AttemptID)
	if err != nil {
		return handler.Error(binder.ValidationError{"payment_attempt_id": {"must be a valid UUID"}})
	}
	status, err := s.billing.ConfirmCryptoTransfer(ctx, user.ID, attemptID, req.TransactionHash)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(status)
}

func (s *Service) status(ctx handler.Context, _ struct{}) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	status, err := s.billing.GetStatus(ctx, user.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(status)
}
