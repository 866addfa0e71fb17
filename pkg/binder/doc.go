// Package binder fills request structs from HTTP requests.
//
// Each binder is a func(r *http.Request, v any) error so it can be chained by
// the handler package:
//
//	type SwapRequest struct {
//		Source *multipart.FileHeader `file:"source_image" validate:"required"`
//		Target *multipart.FileHeader `file:"target_image" validate:"required"`
//	}
//
//	handler.Wrap(swap, handler.WithBinders[SwapRequest](
//		binder.Form(),
//		binder.Validate(),
//	))
//
// JSON bodies are decoded strictly: unknown fields and trailing data are
// rejected and string fields are trimmed. Validate runs
// github.com/go-playground/validator/v10 over the bound struct and reports
// failures keyed by the json, form or query field name.
package binder
