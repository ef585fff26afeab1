package shared

const (
	ProjectID = "mycoach-project" // Can be overridden by env var in main if needed

	TopicCoachingResults = "topic-coaching-results" // Delivery hand-off (email/web collaborators)
	TopicSyncCompleted   = "topic-sync-completed"

	CollectionUsers = "users"
)
