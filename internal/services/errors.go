package services

import "errors"

// Error taxonomy for the payment flow. Handlers map these onto HTTP status
// codes; everything else surfaces as a generic 500.
var (
	// ErrInvalidRequest marks malformed or missing caller input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPortfolioNotFound marks a reference to a portfolio that does not exist.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrAlreadyPaid marks an attempt to restart checkout for a portfolio
	// whose payment already completed. paymentStatus never moves back from
	// paid.
	ErrAlreadyPaid = errors.New("portfolio already paid")

	// ErrSignatureInvalid marks a webhook whose signature did not verify.
	// Must never be downgraded to success.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrUpstream marks a failed call to Stripe or Firestore.
	ErrUpstream = errors.New("upstream error")
)
