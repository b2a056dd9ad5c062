package models

import (
	"time"

	"github.com/google/uuid"
)

// User holds the uploading user's identity. DisplayName is what ends up as
// the first segment of the storage path for attached receipts.
type User struct {
	ID          uuid.UUID `db:"id"`
	Username    string    `db:"username"`
	DisplayName string    `db:"display_name"`
	CreatedAt   time.Time `db:"created_at"`
}
