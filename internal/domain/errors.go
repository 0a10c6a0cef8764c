package domain

import "errors"

var (
	ErrDuplicateBroadcast = errors.New("mosque already has an active broadcast")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUtteranceNotFound  = errors.New("utterance not found")
	ErrUnauthorized       = errors.New("role not allowed to perform this action")
	ErrRateLimited        = errors.New("provider rate limit exceeded")
	ErrAllProvidersFailed = errors.New("all translation providers failed")
	ErrAppendFailed       = errors.New("utterance append failed")
	ErrValidation         = errors.New("invalid payload")
)
