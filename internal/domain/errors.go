package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ExchangeError represents a failure of an exchange operation.
// Timeouts, connection drops and rate limits are retriable;
// everything else propagates immediately.
type ExchangeError struct {
	Op        string // Operation that failed (e.g., "fetch ticker", "create order")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *ExchangeError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExchangeError) IsRetriable() bool {
	return e.Retriable
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError creates a new retriable exchange error
func NewExchangeError(op string, err error) *ExchangeError {
	return &ExchangeError{Op: op, Err: err, Retriable: true}
}

// NewFatalExchangeError creates a non-retriable exchange error
func NewFatalExchangeError(op string, err error) *ExchangeError {
	return &ExchangeError{Op: op, Err: err, Retriable: false}
}

// OrderRejectedError is returned when the exchange declines an order
// outright (bad amount, insufficient balance, unknown symbol).
// Never retriable: the attempted transition is aborted as-is.
type OrderRejectedError struct {
	Symbol string
	Side   string
	Err    error
}

func (e *OrderRejectedError) Error() string {
	return "order rejected [" + e.Side + " " + e.Symbol + "]: " + e.Err.Error()
}

func (e *OrderRejectedError) IsRetriable() bool {
	return false
}

func (e *OrderRejectedError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrInsufficientBalance is returned when a sell finds no free base asset. Not retriable.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidSymbol is returned when a symbol is not supported or malformed. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrRateLimited is returned when the exchange throttles us. Retriable after the delay.
	ErrRateLimited = errors.New("rate limited")
)
