package model

import "time"

// PushSubscription is a browser push endpoint registered by an admin.
type PushSubscription struct {
	ID         int64     `json:"id"`
	Subject    string    `json:"subject"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
