package config

const (
	// TopicEmbedTask is the NSQ topic for per-source embedding tasks.
	TopicEmbedTask = "ingest.embed"

	// ChannelBackend is the consumer channel shared by backend workers.
	ChannelBackend = "backend"
)
