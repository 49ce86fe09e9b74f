package registry

// NonRetryableError marks a failure that will repeat on every attempt, such
// as an unknown event type or an undecodable payload. The publisher moves
// these rows straight to the dead letter table.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
