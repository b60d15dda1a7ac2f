package store

// Chat is a mirrored conversation. Timestamps are Unix seconds.
type Chat struct {
	JID                string
	Name               string
	IsGroup            bool
	Archived           bool
	UnreadCount        int
	LastMessageID      string
	LastMessageAt      int64
	LastMessagePreview string
	LastMessageFromMe  bool
}

// Contact is a mirrored address-book entry.
type Contact struct {
	JID      string
	Name     string
	PushName string
}

// Message is a mirrored message. Timestamp is Unix seconds.
type Message struct {
	ID          int64
	ChatJID     string
	MsgID       string
	SenderJID   string
	SenderName  string
	Body        string
	MessageType string
	HasMedia    bool
	MimeType    string
	Filename    string
	FromMe      bool
	Status      string
	Timestamp   int64
}

// LinkedRecord is a business record attached to a channel.
type LinkedRecord struct {
	ID         string
	ChannelID  string
	Name       string
	FirstName  string
	Status     string
	Service    string
	RecordDate string
}

// Group is a named recipient list. Members are channel ids in insertion order.
type Group struct {
	ID      string
	Name    string
	Members []string
}

// Batch job and target states.
const (
	BatchQueued   = "queued"
	BatchRunning  = "running"
	BatchDone     = "done"
	BatchFailed   = "failed"
	BatchCanceled = "canceled"

	TargetQueued  = "queued"
	TargetSending = "sending"
	TargetSent    = "sent"
	TargetFailed  = "failed"
)

// BatchJob is a persisted batch request. Items holds the JSON-encoded items.
type BatchJob struct {
	ID               string
	OwnerID          string
	Items            string
	IntervalMs       int64
	BigIntervalMs    int64
	MessagesUntilBig int
	Status           string
	CreatedAt        int64
}

// BatchTarget is one recipient of a batch job. Params holds JSON-encoded
// template variables.
type BatchTarget struct {
	JobID        string
	ChannelID    string
	Position     int
	Params       string
	Status       string
	ErrorMessage string
	ServerMsgID  string
}

// BatchProgress counts a job's targets by state.
type BatchProgress struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Total  int    `json:"total"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
