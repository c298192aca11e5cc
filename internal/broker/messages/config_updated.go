package messages

import "time"

// ConfigUpdated публикуется после записи конфига тенантов, чтобы остальные инстансы сбросили кэш.
type ConfigUpdated struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Key        string    `json:"key"`
	UpdatedAt  time.Time `json:"updated_at"`
}
