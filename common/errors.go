package common

import "errors"

var (
	ErrInvalidRoundPeriod = errors.New("round period must be positive")
	ErrInvalidRounds      = errors.New("round bound must be at least 1")
	ErrKeepaliveTooSlow   = errors.New("max no send rounds must be below max no receive rounds, otherwise idle peers get evicted")
)
