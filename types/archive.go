package types

import "time"

// ThreadArchive is the document written to object storage when a user
// exports their threads.
type ThreadArchive struct {
	Username   string    `json:"username"`
	ExportedAt time.Time `json:"exported_at"`
	Sent       []Message `json:"sent"`
	Received   []Message `json:"received"`
}

// Archive describes a stored thread export.
type Archive struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Bucket   string `json:"bucket"`
	Sent     int    `json:"sent"`
	Received int    `json:"received"`
}
