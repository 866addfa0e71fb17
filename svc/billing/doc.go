// Package billing records payment attempts and reconciles them into
// subscriptions and user entitlements.
//
// Card payments go through a CardProcessor (Stripe or Paddle) and are
// confirmed when the user returns from the hosted checkout. Crypto payments
// are manual USDT transfers confirmed by submitting the transaction hash; the
// on-chain check sits behind the TransferVerifier interface.
//
// Every write to a user's entitlement runs under the same per-user lock the
// metering path uses, and every terminal attempt transition is a conditional
// update in the store, so a double-submitted confirmation grants at most once.
package billing
