package forecast

import "errors"

var (
	// ErrParse reports a generator response that is not a JSON object.
	ErrParse = errors.New("forecast response is not valid JSON")
	// ErrGenerate reports a failed generator call.
	ErrGenerate = errors.New("forecast generation failed")
)
