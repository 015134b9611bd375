package replay

import "errors"

var (
	ErrGameNotFound = errors.New("game not found")
	ErrNoRecordings = errors.New("no recordings to score")
	ErrMissingGame  = errors.New("recording missing game")
)
