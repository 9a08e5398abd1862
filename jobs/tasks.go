package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries notification dispatch and mail delivery.
	QueueNotifications = "notifications"
)
