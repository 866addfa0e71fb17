package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/pkg/file"
	"github.com/dmitrymomot/faceswap/pkg/locker"
	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/entitlement"
	"github.com/dmitrymomot/faceswap/svc/identity"
	"github.com/dmitrymomot/faceswap/svc/swap"
)

type mapping struct {
	target error
	err    handler.HTTPError
}

func httpErr(code int, key, msg string) handler.HTTPError {
	return handler.NewHTTPError(code, key).WithMessage(msg)
}

// mappings is checked in order; the first sentinel matched by errors.Is wins.
var mappings = []mapping{
	// authentication
	{identity.ErrInvalidCredentials, httpErr(http.StatusUnauthorized, "LOGIN_INVALID_CREDENTIALS", "Incorrect email or password")},
	{identity.ErrInvalidToken, httpErr(http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")},
	{identity.ErrInvalidState, httpErr(http.StatusUnauthorized, "GOOGLE_OAUTH_STATE_MISMATCH", "OAuth state is missing, expired or already used")},
	{identity.ErrIncompleteProfile, httpErr(http.StatusUnauthorized, "GOOGLE_INFO_MISSING", "Could not retrieve email or ID from Google")},
	{identity.ErrInactiveUser, httpErr(http.StatusForbidden, "INACTIVE_USER", "Inactive user")},
	{identity.ErrEmailAlreadyExists, httpErr(http.StatusConflict, "EMAIL_EXISTS", "User with this email already exists")},
	{identity.ErrProviderLinked, httpErr(http.StatusConflict, "EMAIL_GOOGLE_MISMATCH", "Email already associated with a different Google account")},
	{identity.ErrUserNotFound, httpErr(http.StatusNotFound, "USER_NOT_FOUND", "User not found")},
	{identity.ErrOAuthExchange, httpErr(http.StatusBadGateway, "GOOGLE_TOKEN_ERROR", "Error obtaining Google token or user info")},
	{identity.ErrOAuthNotConfigured, httpErr(http.StatusServiceUnavailable, "GOOGLE_OAUTH_NOT_CONFIGURED", "Google OAuth not configured")},

	// payments
	{billing.ErrPaymentPending, httpErr(http.StatusPaymentRequired, "PAYMENT_PENDING", "Payment is still pending completion")},
	{billing.ErrAttemptNotFound, httpErr(http.StatusNotFound, "PAYMENT_ATTEMPT_NOT_FOUND", "Payment attempt not found or does not belong to user")},
	{billing.ErrSubscriptionNotFound, httpErr(http.StatusNotFound, "SUBSCRIPTION_NOT_FOUND", "Subscription not found")},
	{billing.ErrInvalidPlan, httpErr(http.StatusUnprocessableEntity, "INVALID_PAYMENT_TYPE", "Invalid payment type")},
	{billing.ErrInvalidTransactionHash, httpErr(http.StatusUnprocessableEntity, "INVALID_TX_HASH", "Invalid transaction hash format")},
	{billing.ErrPaymentFailed, httpErr(http.StatusBadRequest, "PAYMENT_FAILED", "Payment not successful")},
	{billing.ErrAttemptFailed, httpErr(http.StatusBadRequest, "PAYMENT_FAILED_PREVIOUSLY", "This payment attempt was previously marked as failed")},
	{billing.ErrTransferRejected, httpErr(http.StatusBadRequest, "TRANSFER_REJECTED", "Transfer could not be verified")},
	{billing.ErrUpstream, httpErr(http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", "Payment provider request failed")},
	{billing.ErrAlreadySucceeded, httpErr(http.StatusInternalServerError, "PAYMENT_ALREADY_CONFIRMED", "This payment has already been confirmed")},
	{billing.ErrOwnershipMismatch, httpErr(http.StatusInternalServerError, "PAYMENT_OWNERSHIP_MISMATCH", "Payment does not belong to the current user")},
	{billing.ErrIntegrity, httpErr(http.StatusInternalServerError, "PAYMENT_METADATA_INVALID", "Payment metadata is inconsistent")},
	{billing.ErrInvalidTransition, httpErr(http.StatusInternalServerError, "PAYMENT_STATE_CONFLICT", "Payment state changed concurrently")},
	{billing.ErrProcessorNotConfigured, httpErr(http.StatusServiceUnavailable, "CARD_PROCESSOR_NOT_CONFIGURED", "Card payments are not configured")},
	{billing.ErrCryptoNotConfigured, httpErr(http.StatusServiceUnavailable, "USDT_NOT_CONFIGURED", "USDT payment not configured")},

	// uploads and processing
	{file.ErrMIMETypeNotAllowed, httpErr(http.StatusUnprocessableEntity, "INVALID_FILE_TYPE", "Both files must be JPEG, PNG or WebP images")},
	{file.ErrEmptyFile, httpErr(http.StatusUnprocessableEntity, "EMPTY_IMAGE_DATA", "Image data could not be read or is empty")},
	{swap.ErrEmptyImage, httpErr(http.StatusUnprocessableEntity, "EMPTY_IMAGE_DATA", "Image data could not be read or is empty")},
	{file.ErrFileTooLarge, httpErr(http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "Image exceeds the maximum upload size")},
	{swap.ErrSwapFailed, httpErr(http.StatusInternalServerError, "FACESWAP_FAILED", "Face swap processing failed")},

	{locker.ErrLockTimeout, httpErr(http.StatusServiceUnavailable, "BUSY", "Another request for this account is in progress")},
}

// ErrorMapper translates domain errors into HTTP errors. Entitlement denials
// carry their reason in both the code and the reason field.
func ErrorMapper(limits entitlement.Limits) handler.ErrorMapper {
	return func(err error) (handler.HTTPError, bool) {
		if reason, ok := entitlement.ReasonOf(err); ok {
			return limitError(reason, limits), true
		}
		for _, m := range mappings {
			if errors.Is(err, m.target) {
				return m.err, true
			}
		}
		return handler.HTTPError{}, false
	}
}

func limitError(reason entitlement.Reason, limits entitlement.Limits) handler.HTTPError {
	switch reason {
	case entitlement.ReasonFreeLimitReached:
		return httpErr(http.StatusPaymentRequired, "FREE_LIMIT_REACHED",
			fmt.Sprintf("Free request limit of %d reached. Please subscribe for continued use.", limits.Free),
		).WithReason(string(reason))
	case entitlement.ReasonMonthlyLimitReached:
		return httpErr(http.StatusPaymentRequired, "MONTHLY_LIMIT_REACHED",
			"Monthly request limit reached or subscription expired. Please check your subscription.",
		).WithReason(string(reason))
	default:
		return handler.ErrPaymentRequired.WithReason(string(reason))
	}
}
