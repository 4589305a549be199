package models

import "time"

// Base defines the common fields shared by all persisted records:
// an externally stable string ID plus creation/update timestamps.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Touch stamps the record with now, setting CreatedAt only on first write.
func (b *Base) Touch(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}
