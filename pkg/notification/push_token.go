package notification

import "time"

// PushProvider identifies the push vendor a device token belongs to.
type PushProvider string

const (
	PushProviderFirebase PushProvider = "FIREBASE"
	PushProviderWebPush  PushProvider = "WEBPUSH"
)

// PushToken is a device registration. Tokens reported as gone by a provider
// are deactivated rather than deleted, preserving registration history.
type PushToken struct {
	Token     string       `json:"token"`
	Provider  PushProvider `json:"provider"`
	UserID    string       `json:"user_id"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
