// Package messaging provides the pub/sub bus carrying engine lifecycle
// events to the transport adapter: match results, chat endings, ban notices
// and moderator alerts. Two implementations exist: a NATS-backed bus for
// multi-process deployments and an in-process bus used when no NATS server
// is configured. Both deliver each published message to every subscriber
// of the subject, in publish order per subscriber.
package messaging

// Subjects published by the engine.
const (
	SubjectMatchFound   = "match.found"   // MatchFound: a pair was created
	SubjectMatchTimeout = "match.timeout" // MatchTimeout: search horizon exhausted
	SubjectChatEnded    = "chat.ended"    // ChatEnded: a pair member lost its partner
	SubjectBanned       = "user.banned"   // BanNotice: participant was banned
	SubjectUnbanned     = "user.unbanned" // UnbanNotice: participant was unbanned
	SubjectModAlert     = "mod.alert"     // ModAlert: moderator-facing notification
)

// Bus is the pub/sub boundary between the engine and its consumers.
// Handlers run on bus-owned goroutines and must not block indefinitely.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) error
	Close()
}
