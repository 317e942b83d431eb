package model

import "github.com/m-mizutani/goerr/v2"

// Tags classify errors for the HTTP layer. Untagged errors are internal.
var (
	ErrTagUnauthorized  = goerr.NewTag("unauthorized")
	ErrTagValidation    = goerr.NewTag("validation")
	ErrTagQuotaExceeded = goerr.NewTag("quota_exceeded")
)

var (
	ErrInvalidTrack   = goerr.New("invalid track", goerr.T(ErrTagValidation))
	ErrInvalidRole    = goerr.New("invalid message role")
	ErrUnknownFeature = goerr.New("unknown feature", goerr.T(ErrTagValidation))
)
