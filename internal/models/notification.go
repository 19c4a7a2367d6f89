package models

import "time"

// NotificationKind tags the event a persisted notification was produced from.
type NotificationKind string

const (
	NotifyComment        NotificationKind = "comment"
	NotifyReply          NotificationKind = "reply"
	NotifyReplyToReply   NotificationKind = "reply_to_reply"
	NotifyFollow         NotificationKind = "follow"
	NotifyFollowRequest  NotificationKind = "follow_request"
	NotifyFollowAccepted NotificationKind = "follow_accepted"
	NotifyReport         NotificationKind = "report"
)

// Notification is a persisted notification row. It carries only ids; display
// text is resolved lazily by the reading side.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`  // target user
	Kind      NotificationKind `json:"kind"`
	ActorID   int64            `json:"actorId"` // user who triggered the event
	SubjectID int64            `json:"subjectId,omitempty"` // post/comment/report the event refers to
	CreatedAt time.Time        `json:"createdAt"`
	Seen      bool             `json:"seen"`
}
