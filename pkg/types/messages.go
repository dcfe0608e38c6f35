package types

import "encoding/json"

// Client -> Server message types.
const (
	MsgJoin         = "Join"
	MsgLeave        = "Leave"
	MsgVote         = "Vote"
	MsgPick         = "Pick"
	MsgRequestSwap  = "RequestSwap"
	MsgAnswerSwap   = "AnswerSwap"
	MsgContinue     = "Continue"
	MsgReportWinner = "ReportWinner"
	MsgRetryCommit  = "RetryCommit"
	MsgReset        = "Reset"
)

// Server -> Client message types.
const (
	MsgStateSnapshot  = "StateSnapshot"
	MsgPhaseChanged   = "PhaseChanged"
	MsgMatchCreated   = "MatchCreated"
	MsgCommitFailed   = "CommitFailed"
	MsgWinnerReported = "WinnerReported"
	MsgResult         = "Result"
	MsgError          = "Error"
)

// ClientMessage is one platform event aimed at a queue. Participant fields
// identify the actor; the platform has already authenticated them.
type ClientMessage struct {
	Type            string `json:"type"`
	Queue           int    `json:"queue"`
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name,omitempty"`
	Session         string `json:"session,omitempty"`   // "captains" | "map"
	Candidate       string `json:"candidate,omitempty"` // participant id or map name
	PoolIndex       *int   `json:"pool_index,omitempty"`
	Accept          bool   `json:"accept,omitempty"`
	Team            string `json:"team,omitempty"`
}

type ServerMessage struct {
	Type    string          `json:"type"`
	Queue   int             `json:"queue,omitempty"`
	Version int             `json:"version,omitempty"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	State   json.RawMessage `json:"state,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
