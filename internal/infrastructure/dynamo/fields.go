package dynamo

// DynamoDB attribute names used in update expressions across all repos.
const (
	fieldUpdatedAt    = "updated_at"
	fieldTokenVersion = "token_version"
	fieldEmail        = "email"

	fieldUsed       = "used"
	fieldAttempts   = "attempts"
	fieldVerifiedAt = "verified_at"

	fieldStatus    = "status"
	fieldClaimedAt = "claimed_at"
	fieldSentAt    = "sent_at"
	fieldLastError = "last_error"
	fieldQueuedAt  = "queued_at"

	fieldAcceptedAt  = "accepted_at"
	fieldCompletedAt = "completed_at"
)
