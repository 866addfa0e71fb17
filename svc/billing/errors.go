package billing

import "errors"

var (
	ErrAttemptNotFound        = errors.New("billing: payment attempt not found")
	ErrSubscriptionNotFound   = errors.New("billing: subscription not found")
	ErrInvalidPlan            = errors.New("billing: invalid plan")
	ErrInvalidTransactionHash = errors.New("billing: invalid transaction hash")
	ErrInvalidTransition      = errors.New("billing: invalid payment status transition")
	ErrAlreadySucceeded       = errors.New("billing: payment attempt already succeeded")
	ErrAttemptFailed          = errors.New("billing: payment attempt is closed")
	ErrPaymentPending         = errors.New("billing: payment is still pending")
	ErrPaymentFailed          = errors.New("billing: payment failed")
	ErrIntegrity              = errors.New("billing: payment attempt metadata is inconsistent")
	ErrOwnershipMismatch      = errors.New("billing: payment attempt belongs to another user")
	ErrUpstream               = errors.New("billing: payment provider request failed")
	ErrProcessorNotConfigured = errors.New("billing: card processor is not configured")
	ErrCryptoNotConfigured    = errors.New("billing: crypto wallet is not configured")
	ErrTransferRejected       = errors.New("billing: transfer could not be verified")
)
