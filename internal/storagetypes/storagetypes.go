package storagetypes

import (
	"time"
)

type ProactivitySettings struct {
	UserID      int64      `json:"user_id"`
	Enabled     bool       `json:"is_enabled"`
	EnabledAt   time.Time  `json:"enabled_at"`
	PausedUntil *time.Time `json:"paused_until,omitempty"`
	PauseReason string     `json:"pause_reason,omitempty"`
	ABGroup     string     `json:"ab_test_group"`
	Timezone    string     `json:"timezone"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Paused reports whether the settings carry a pause that has not expired at now.
func (s ProactivitySettings) Paused(now time.Time) bool {
	return s.PausedUntil != nil && s.PausedUntil.After(now)
}

// InitiationContext is the structured context stored with a schedule row.
// Fields are filled per initiation type; unused ones stay zero.
type InitiationContext struct {
	MainTopic      string   `json:"main_topic,omitempty"`
	LastQuestion   string   `json:"last_question,omitempty"`
	DaysAgo        int      `json:"days_ago,omitempty"`
	ConnectionType string   `json:"connection_type,omitempty"`
	DaysBetween    int      `json:"days_between,omitempty"`
	SharedConcepts []string `json:"shared_concepts,omitempty"`
	Emotion        string   `json:"emotional_context,omitempty"`
	EmotionTrend   string   `json:"emotion_trend,omitempty"`
	SupportType    string   `json:"support_type,omitempty"`
}

type ScheduleEntry struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"user_id"`
	ScheduledAt      time.Time         `json:"scheduled_at"`
	Type             InitiationType    `json:"initiation_type"`
	SourceMemoryIDs  []int64           `json:"source_memory_ids"`
	Context          InitiationContext `json:"context_data"`
	EmotionContext   string            `json:"emotion_context,omitempty"`
	Status           Status            `json:"status"`
	SentAt           *time.Time        `json:"sent_at,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	ResponseReceived bool              `json:"user_response_received"`
	CreatedAt        time.Time         `json:"created_at"`
}

type LogEntry struct {
	ID                int64          `json:"id"`
	UserID            int64          `json:"user_id"`
	InitiationID      int64          `json:"initiation_id"`
	Content           string         `json:"message_content"`
	Type              InitiationType `json:"initiation_type"`
	CreatedAt         time.Time      `json:"created_at"`
	Responded         bool           `json:"user_responded"`
	Response          string         `json:"user_response,omitempty"`
	ResponseEmotion   string         `json:"user_response_emotion,omitempty"`
	ResponseSentiment *float64       `json:"user_response_sentiment,omitempty"`
	ResponseLength    int            `json:"user_response_length"`
	ResponseMinutes   int            `json:"response_time_minutes"`
}

// ResponseUpdate is the single mutation a log entry receives after send.
type ResponseUpdate struct {
	Text      string
	Emotion   string
	Sentiment float64
	Length    int
	Minutes   int
}

type StyleMarkers struct {
	MagicalRealism  bool     `json:"magical_realism"`
	Balkanisms      []string `json:"balkanisms,omitempty"`
	SymbolicObjects []string `json:"symbolic_objects,omitempty"`
}

func (m StyleMarkers) Empty() bool {
	return !m.MagicalRealism && len(m.Balkanisms) == 0 && len(m.SymbolicObjects) == 0
}

type Memory struct {
	ID           int64         `json:"id"`
	UserID       int64         `json:"user_id"`
	UserMessage  string        `json:"user_message"`
	BotResponse  string        `json:"bot_response"`
	Importance   int           `json:"importance_score"`
	Type         MemoryType    `json:"memory_type"`
	StyleMarkers *StyleMarkers `json:"style_markers,omitempty"`
	Tags         []string      `json:"contextual_tags"`
	CreatedAt    time.Time     `json:"created_at"`
	AccessCount  int           `json:"access_count"`
	LastAccessed *time.Time    `json:"last_accessed,omitempty"`
}

type HistoryEntry struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Emotion    string    `json:"emotion_primary,omitempty"`
	Confidence *float64  `json:"emotion_confidence,omitempty"`
	Mode       Mode      `json:"bot_mode"`
	CreatedAt  time.Time `json:"created_at"`
}

type MemoryStats struct {
	UserID         int64      `json:"user_id"`
	Total          int        `json:"total_memories"`
	AvgImportance  float64    `json:"avg_importance"`
	UserSaved      int        `json:"user_favorites"`
	AutoSaved      int        `json:"auto_saved"`
	LastMemoryDate *time.Time `json:"last_memory_date,omitempty"`
}

// InitiationMetrics summarises initiation logs over a trailing window.
type InitiationMetrics struct {
	ActiveUsers     int     `json:"active_users"`
	Total           int     `json:"total"`
	Responded       int     `json:"responded"`
	ResponseRate    float64 `json:"response_rate"`
	AvgResponseLen  float64 `json:"avg_response_length"`
	AvgSentiment    float64 `json:"avg_sentiment"`
	AvgResponseMins float64 `json:"avg_response_minutes"`
}

// CleanupReport counts rows touched by one maintenance pass.
type CleanupReport struct {
	StaleCancelled int64 `json:"stale_cancelled"`
	LogsDeleted    int64 `json:"logs_deleted"`
	MemoryDeleted  int64 `json:"ltm_deleted"`
	HistoryDeleted int64 `json:"history_deleted"`
}
