package models

import "time"

// Ticket is a resolved historical support ticket, keyed by TicketID in the
// relational store. Rows are never mutated or deleted once written.
type Ticket struct {
	TicketID     string
	CustomerName string
	Timestamp    time.Time
	Category     string
	Question     string
	Resolution   string
}

// RawTicket is the inbound ingestion payload. Field presence is validated
// before any conversion; Timestamp arrives as an RFC3339 string.
type RawTicket struct {
	TicketID     string `json:"ticket_id"`
	CustomerName string `json:"customer_name"`
	Timestamp    string `json:"timestamp"`
	Category     string `json:"category"`
	Question     string `json:"question"`
	Resolution   string `json:"resolution"`
}

// IndexDocument is one searchable record in the hybrid index. ID is the
// index-safe form of TicketID (hyphens replaced with underscores); the vector
// is deterministic given the ticket content and the embedding model.
type IndexDocument struct {
	ID            string
	TicketID      string
	Category      string
	Question      string
	Resolution    string
	ContentVector []float32
}

// ContextRecord is a single retrieval result, ranked by the fused relevance
// score. Lives only within one retrieval call.
type ContextRecord struct {
	TicketID   string
	Category   string
	Question   string
	Resolution string
}

// AnswerResult is the outcome of one chat turn. Sources holds the ticket IDs
// that survived citation validation, in context order.
type AnswerResult struct {
	Answer          string   `json:"answer"`
	Sources         []string `json:"sources"`
	ConfidenceScore float64  `json:"confidence_score"`
}

type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestReport summarizes one ingestion batch.
type IngestReport struct {
	Validated         int `json:"validated"`
	Persisted         int `json:"persisted"`
	Indexed           int `json:"indexed"`
	SkippedEmbeddings int `json:"skipped_embeddings"`
}
