package gateway

import (
	"encoding/json"
	"time"
)

// Inbound frame types.
const (
	TypeIdentifyPlayer        = "identify_player"
	TypeElectronIdentify      = "electron_identify"
	TypeRegisterLCUConnection = "register_lcu_connection"
	TypeGameClientResponse    = "gameclient_response"
	TypeIdentityConfirmed     = "identity_confirmed_critical"
	TypeHeartbeat             = "heartbeat"
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeJoinQueue             = "join_queue"
	TypeLeaveQueue            = "leave_queue"
	TypeAcceptMatch           = "accept_match"
	TypeDeclineMatch          = "decline_match"
	TypeDraftAction           = "draft_action"
	TypeDraftConfirm          = "draft_confirm"
	TypeDraftSnapshot         = "draft_snapshot"
	TypeCastMatchVote         = "cast_match_vote"
	TypeMatchFoundAck         = "match_found_acknowledged"
	TypeDraftAck              = "draft_acknowledged"
	TypeGameAck               = "game_acknowledged"
	TypeReconnectCheck        = "reconnect_check_response"
)

// Outbound frame types.
const (
	TypeQueueStatus         = "queue_status"
	TypeMatchFound          = "match_found"
	TypeMatchAcceptProgress = "match_acceptance_progress"
	TypeMatchAccepted       = "match_accepted"
	TypeMatchCancelled      = "match_cancelled"
	TypeDraftUpdated        = "draft_updated"
	TypeGameReady           = "game_ready"
	TypeGameStarted         = "game_started"
	TypeMatchVoteProgress   = "match_vote_progress"
	TypeMatchLinked         = "match_linked"
	TypeRestoreActiveMatch  = "restore_active_match"
	TypeGameClientRequest   = "gameclient_request"
	TypeConfirmIdentity     = "confirm_identity_critical"
	TypeHeartbeatAck        = "heartbeat_ack"
	TypeError               = "error"
)

// Frame is the wire envelope for inbound messages. RPC frames carry their
// correlation fields at the root; everything else travels in Data.
type Frame struct {
	Type         string          `json:"type"`
	ID           string          `json:"id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Status       int             `json:"status,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
	SummonerName string          `json:"summonerName,omitempty"`
	PUUID        string          `json:"puuid,omitempty"`
}

// Inbound payloads.

type IdentifyPayload struct {
	SummonerName string `json:"summonerName"`
	PUUID        string `json:"puuid"`
	Region       string `json:"region"`
}

type LCUConnectionPayload struct {
	SummonerName string `json:"summonerName"`
	Port         int    `json:"port"`
	Token        string `json:"token"`
}

type JoinQueuePayload struct {
	SummonerName  string `json:"summonerName"`
	Region        string `json:"region"`
	PrimaryLane   string `json:"primaryLane"`
	SecondaryLane string `json:"secondaryLane"`
}

type LeaveQueuePayload struct {
	SummonerName string `json:"summonerName"`
	Region       string `json:"region"`
}

type MatchDecisionPayload struct {
	MatchID      int64  `json:"matchId"`
	SummonerName string `json:"summonerName"`
}

type DraftActionPayload struct {
	MatchID      int64  `json:"matchId"`
	ActionIndex  int    `json:"actionIndex"`
	ChampionID   string `json:"championId"`
	ChampionName string `json:"championName"`
	SummonerName string `json:"summonerName"`
}

type DraftConfirmPayload struct {
	MatchID      int64  `json:"matchId"`
	SummonerName string `json:"summonerName"`
}

type CastVotePayload struct {
	MatchID        int64  `json:"matchId"`
	SummonerName   string `json:"summonerName"`
	ExternalGameID string `json:"externalGameId"`
}

type AckPayload struct {
	MatchID      int64  `json:"matchId"`
	SummonerName string `json:"summonerName"`
}

type ReconnectCheckPayload struct {
	SummonerName string `json:"summonerName"`
}

// Event is an outbound message. Data is personalized per target before the
// bytes hit a socket: the target's summoner name is stamped both at the
// frame root and inside data so misrouted copies can be discarded by the
// gateway.
type Event struct {
	Type          string
	Data          any
	TimeRemaining *int
	// Meta carries extra frame-root fields alongside the envelope keys.
	Meta map[string]any
}

// NewEvent wraps a typed payload for broadcast.
func NewEvent(eventType string, data any) *Event {
	return &Event{Type: eventType, Data: data}
}

// EncodeFor serializes the event for one target. An empty target produces an
// untargeted frame (queue status, global fan-out payloads keep the original
// target stamp instead).
func (e *Event) EncodeFor(targetSummoner string) ([]byte, error) {
	rawData, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}

	if targetSummoner != "" && len(rawData) > 0 && rawData[0] == '{' {
		var dataMap map[string]any
		if err := json.Unmarshal(rawData, &dataMap); err == nil {
			dataMap["targetSummoner"] = targetSummoner
			if rawData, err = json.Marshal(dataMap); err != nil {
				return nil, err
			}
		}
	}

	frame := map[string]any{
		"type":      e.Type,
		"data":      json.RawMessage(rawData),
		"timestamp": time.Now().UnixMilli(),
	}
	for k, v := range e.Meta {
		if _, reserved := frame[k]; !reserved {
			frame[k] = v
		}
	}
	if targetSummoner != "" {
		frame["targetSummoner"] = targetSummoner
	}
	if e.TimeRemaining != nil {
		frame["timeRemaining"] = *e.TimeRemaining
	}
	return json.Marshal(frame)
}

// ErrorFrame builds the standard error frame sent back to an offending
// client.
func ErrorFrame(code, message string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"type":    TypeError,
		"error":   code,
		"message": message,
	})
	return raw
}
