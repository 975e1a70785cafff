package domain

import "errors"

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrRoundNotFound      = errors.New("round not found")
	ErrQuestionNotFound   = errors.New("question not found")
	ErrNotInRound         = errors.New("connection has not joined a round")
	ErrNotAMember         = errors.New("not a member of the round")
	ErrRoundStarted       = errors.New("round already started")
	ErrConnectionGone     = errors.New("connection gone")
)
