package llm

// GenerationError reports a failed content-generation call: network error,
// malformed response, or an empty payload. Fatal for the session.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generate content: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// GradingError reports a failed grading call. Recoverable: the session
// keeps its answers and audio so submission can be retried.
type GradingError struct {
	Err error
}

func (e *GradingError) Error() string { return "grade submission: " + e.Err.Error() }
func (e *GradingError) Unwrap() error { return e.Err }
