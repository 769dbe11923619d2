package engine

// Event payloads published on the message bus. The transport adapter
// subscribes and renders them as user-facing notifications; the engine
// never formats user text itself.

// Causes carried by ChatEnded.
const (
	CausePartnerLeft    = "partner_left"
	CauseReported       = "reported"
	CausePartnerBanned  = "partner_banned"
	CauseDeliveryFailed = "delivery_failed"
	CauseModerator      = "moderator"
)

// ModAlert kinds. Auto-bans are deliberately distinct from manual bans.
const (
	AlertReport    = "report"
	AlertAutoBan   = "auto_ban"
	AlertManualBan = "manual_ban"
)

// MatchFound announces a new pair on messaging.SubjectMatchFound.
type MatchFound struct {
	ChatID string `json:"chat_id"`
	A      int64  `json:"a"`
	B      int64  `json:"b"`
}

// MatchTimeout announces an exhausted search on
// messaging.SubjectMatchTimeout. Timing out is a normal termination path,
// not an error.
type MatchTimeout struct {
	ParticipantID int64 `json:"participant_id"`
}

// ChatEnded tells one former pair member that the conversation is over.
type ChatEnded struct {
	ParticipantID int64  `json:"participant_id"`
	ChatID        string `json:"chat_id"`
	Cause         string `json:"cause"`
}

// BanNotice tells a participant they were banned.
type BanNotice struct {
	ParticipantID int64  `json:"participant_id"`
	Reason        string `json:"reason"`
	Auto          bool   `json:"auto"`
}

// UnbanNotice tells a participant they were unbanned.
type UnbanNotice struct {
	ParticipantID int64 `json:"participant_id"`
}

// ModAlert is a moderator-facing notification: a new report, an automatic
// ban, or a manual ban confirmation.
type ModAlert struct {
	Kind          string `json:"kind"`
	ReportID      int64  `json:"report_id,omitempty"`
	ReporterID    int64  `json:"reporter_id,omitempty"`
	ReporterAlias string `json:"reporter_alias,omitempty"`
	TargetID      int64  `json:"target_id"`
	TargetAlias   string `json:"target_alias,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Complaints    int    `json:"complaints,omitempty"`
}
