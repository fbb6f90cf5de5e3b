package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
)

type Payment struct {
	ID            int           `json:"id"`
	ShipmentID    int           `json:"shipment_id"`
	Amount        float64       `json:"amount"`
	Status        PaymentStatus `json:"status"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
	PaymentDate   *time.Time    `json:"payment_date,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type PaymentEvent struct {
	EventID    string        `json:"event_id"`
	ShipmentID int           `json:"shipment_id"`
	Tracking   string        `json:"tracking_number"`
	Amount     float64       `json:"amount"`
	Status     PaymentStatus `json:"status"`
	EventType  string        `json:"event_type"` // payment_completed, manual_payment_submitted
	Method     string        `json:"payment_method"`
	Reference  string        `json:"transaction_id"`
}

type CreateSessionRequest struct {
	ShipmentID int    `json:"shipment_id"`
	Amount     int64  `json:"amount"` // smallest currency unit
	Currency   string `json:"currency"`
}

type ManualPaymentRequest struct {
	ShipmentID     int    `form:"shipment_id"`
	PaymentMethod  string `form:"payment_method"`
	TransactionRef string `form:"transaction_ref"`
}
