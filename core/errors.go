package core

import "errors"

var (
	ErrUsage            = errors.New("usage error")
	ErrStageCmd         = errors.New("invalid stage command")
	ErrStageInit        = errors.New("stage initialization failed")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrAlreadyInit      = errors.New("already initialized")
	ErrNotInit          = errors.New("not initialized")
	ErrClosed           = errors.New("queue closed for writing")
	ErrEndOfStream      = errors.New("end of stream")
)
