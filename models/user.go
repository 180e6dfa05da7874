package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the slice of the account record this service reads.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(320);uniqueIndex;not null" json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
