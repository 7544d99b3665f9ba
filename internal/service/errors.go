package service

import "errors"

var (
	ErrQueueDisabled     = errors.New("solo 3v3 queue is disabled")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrLevelTooLow       = errors.New("candidate level is below the minimum")
	ErrForbiddenTalents  = errors.New("too many points invested in forbidden talents")
	ErrDeserter          = errors.New("candidate is marked as deserter")
	ErrAlreadyQueued     = errors.New("candidate is already queued")
	ErrNotQueued         = errors.New("candidate is not queued")
	ErrInvitePending     = errors.New("candidate has a pending match invite")
	ErrInMatch           = errors.New("candidate is in an active match")
	ErrNoTeam            = errors.New("candidate has no solo team")
	ErrAlreadyInTeam     = errors.New("candidate already has a solo team")
	ErrTeamNameExhausted = errors.New("no free team name")
	ErrMatchNotFound     = errors.New("match not found")
	ErrNotParticipant    = errors.New("candidate is not part of the match")
	ErrInvalidGroup      = errors.New("invalid queue group")
)
