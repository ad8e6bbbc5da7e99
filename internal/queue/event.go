// Package queue carries analysis events over RabbitMQ: the publisher used
// by the analysis service and the background consumer that writes them to
// the analysis log.
package queue

import "time"

// AnalysisQueueName is the durable queue analysis events are routed to.
const AnalysisQueueName = "analysis.completed"

// AnalysisCompletedEvent is published after a successful, charged analysis.
// It carries enough context for the log consumer (or any later analytics
// job) without querying the users table.
type AnalysisCompletedEvent struct {
    EventID     string    `json:"event_id"`
    UserID      uint64    `json:"user_id"`
    Username    string    `json:"username"`
    Plant       string    `json:"plant,omitempty"`
    Country     string    `json:"country,omitempty"`
    Region      string    `json:"region,omitempty"`
    Environment string    `json:"environment,omitempty"`
    System      string    `json:"system,omitempty"`
    Language    string    `json:"language,omitempty"`
    Legacy      bool      `json:"legacy,omitempty"`
    Cached      bool      `json:"cached"`
    UsageDaily  int       `json:"usage_daily"`
    LimitDaily  int       `json:"limit_daily"`
    DurationMS  int64     `json:"duration_ms"`
    CompletedAt time.Time `json:"completed_at"`
}
