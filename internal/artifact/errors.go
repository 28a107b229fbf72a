package artifact

import "errors"

// EncodingError reports content that cannot be canonically serialized
// (floats, nulls, unsupported Go types). It is fatal to the operation that
// produced it and is never retried automatically.
type EncodingError struct {
	Message string
	Field   string // offending field path, when known
}

func (e *EncodingError) Error() string {
	if e.Field != "" {
		return "encoding error at " + e.Field + ": " + e.Message
	}
	return "encoding error: " + e.Message
}

// IsEncodingError reports whether err is (or wraps) an EncodingError.
func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}
