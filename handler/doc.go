// Package handler provides typed HTTP handlers with JSON responses.
//
// A handler receives a bound request value and returns a Response:
//
//	type checkoutRequest struct {
//		Plan string `json:"plan" validate:"required,oneof=one_time monthly"`
//	}
//
//	func checkout(ctx handler.Context, req checkoutRequest) handler.Response {
//		res, err := payments.InitiateCardPayment(ctx, userID, req.Plan)
//		if err != nil {
//			return handler.Error(err)
//		}
//		return handler.JSON(res, handler.WithJSONStatus(http.StatusCreated))
//	}
//
//	r.Post("/checkout", handler.Wrap(checkout,
//		handler.WithBinders[checkoutRequest](binder.JSON(), binder.Validate()),
//		handler.WithErrorHandler[checkoutRequest](errorHandler),
//	))
//
// Successful bodies are wrapped as {"data": ...}; failures as
// {"error": {"code", "message", "reason", "details"}}. HTTPError carries the
// status code and the stable code string. NewErrorHandler resolves domain
// errors through ErrorMapper functions so the mapping lives in one place.
package handler
