package db

import "errors"

// Domain-level database error sentinels.
var (
	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Sharing link errors
	ErrSharingLinkNotFound = errors.New("sharing link not found")
	ErrDuplicateToken      = errors.New("sharing token already exists")

	// Submission errors
	ErrSubmissionNotFound = errors.New("submission not found or already processed")

	// Notification preference errors
	ErrPreferenceNotFound = errors.New("notification preference not found")
)

// pgUniqueViolation is the Postgres error code for unique constraint failures.
const pgUniqueViolation = "23505"
