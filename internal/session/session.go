package session

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Mood is the coarse sentiment derived from the most recent turn.
type Mood string

const (
	MoodPositive Mood = "positive"
	MoodNegative Mood = "negative"
	MoodNeutral  Mood = "neutral"
)

// Turn is one message exchanged within a conversation.
type Turn struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	SenderName string    `json:"sender_name"`
	Timestamp  time.Time `json:"timestamp"`
}

// Context carries state derived from the conversation content.
type Context struct {
	Mood   Mood     `json:"mood"`
	Topics []string `json:"topics"`
}

// ContactSession is the full conversation state for one contact.
// Timestamps serialize as RFC 3339 via encoding/json.
type ContactSession struct {
	ID             string    `json:"id"`
	Turns          []Turn    `json:"turns"`
	Participants   []string  `json:"participants"`
	TotalMessages  int       `json:"total_messages"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Context        Context   `json:"context"`
}

func (s *ContactSession) addParticipant(name string) {
	for _, p := range s.Participants {
		if p == name {
			return
		}
	}
	s.Participants = append(s.Participants, name)
}

// Stats is a read-only snapshot of one session.
type Stats struct {
	TotalMessages  int       `json:"total_messages"`
	TurnsInMemory  int       `json:"turns_in_memory"`
	Participants   []string  `json:"participants"`
	Topics         []string  `json:"topics"`
	Mood           Mood      `json:"mood"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// AggregateStats summarizes the whole store for liveness reporting.
type AggregateStats struct {
	TotalSessions     int            `json:"total_sessions"`
	ActiveSessions    int            `json:"active_sessions"`
	TotalMessages     int            `json:"total_messages"`
	MoodDistribution  map[Mood]int   `json:"mood_distribution"`
	TopicDistribution map[string]int `json:"topic_distribution"`
}

// SearchResult points at a session matching a content search.
type SearchResult struct {
	ContactID     string `json:"contact_id"`
	MatchingTurns int    `json:"matching_turns"`
	LastMatch     Turn   `json:"last_match"`
	TotalMessages int    `json:"total_messages"`
}

// Export is a full dump of one session plus its stats snapshot.
type Export struct {
	ContactID  string    `json:"contact_id"`
	Stats      Stats     `json:"stats"`
	Turns      []Turn    `json:"turns"`
	ExportedAt time.Time `json:"exported_at"`
}
