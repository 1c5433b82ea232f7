package domain

import "time"

// AuthState is an issued OAuth2 CSRF state awaiting its callback. A row is
// valid until ExpiresAt and is deleted when the callback consumes it.
type AuthState struct {
	State     string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	FarmerID  string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (AuthState) TableName() string { return "oauth_states" }
