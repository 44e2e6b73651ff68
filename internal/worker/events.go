package worker

// EmbedTaskPayload asks the embedding consumer to embed every pending chunk
// of a source. Chunk content stays in Postgres; the message carries only the
// reference.
type EmbedTaskPayload struct {
	SourceID      string `json:"source_id"`
	CorrelationID string `json:"correlation_id"`
}
