package billing

import (
	"context"
	"regexp"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidTransactionHash reports whether hash is a 0x-prefixed 32-byte hex string.
func ValidTransactionHash(hash string) bool {
	return txHashPattern.MatchString(hash)
}

// TransferVerifier checks a submitted transfer on chain. Implementations must
// be idempotent per hash. Returning an error wrapping ErrTransferRejected
// fails the attempt; any other error leaves it untouched.
type TransferVerifier interface {
	Verify(ctx context.Context, attempt *Attempt, hash string) error
}

// StubVerifier accepts every well-formed hash.
type StubVerifier struct{}

func (StubVerifier) Verify(context.Context, *Attempt, string) error {
	return nil
}

var _ TransferVerifier = StubVerifier{}
