package scripting

import "errors"

var (
	// ErrUnknownLanguage is returned for binding prefixes other than lua/js.
	ErrUnknownLanguage = errors.New("scripting: unknown script language")

	// ErrBadBinding is returned for bindings not shaped like "lang:function".
	ErrBadBinding = errors.New("scripting: malformed script binding")

	// ErrFunctionNotFound is returned when a bound function is not defined
	// by the loaded scripts.
	ErrFunctionNotFound = errors.New("scripting: function not defined")

	// ErrBadReturn is returned when a script function does not return a
	// number.
	ErrBadReturn = errors.New("scripting: script returned a non-number")

	// ErrHostClosed is returned when calling into a closed host.
	ErrHostClosed = errors.New("scripting: host closed")
)
