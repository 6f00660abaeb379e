package models

import "database/sql"

// AgentSender is the sender value the automated agent writes into the chat log.
const AgentSender = "ai"

// ChatRecord represents a single historical message read from the chat log table.
// Records are produced by the store and never mutated by the training pipeline.
type ChatRecord struct {
	Text   string `db:"message" json:"message"`
	Sender string `db:"sender" json:"sender"`
}

// ChatRow mirrors a raw row of the chat log. Both columns are nullable in the store.
type ChatRow struct {
	Message sql.NullString `db:"message"`
	Sender  sql.NullString `db:"sender"`
}
