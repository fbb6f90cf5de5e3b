package models

import "time"

type ShipmentPaymentStatus string

const (
	ShipmentUnpaid    ShipmentPaymentStatus = "unpaid"
	ShipmentPending   ShipmentPaymentStatus = "pending"
	ShipmentCompleted ShipmentPaymentStatus = "completed"
)

type Shipment struct {
	ID               int                   `json:"shipment_id"`
	ClientID         int                   `json:"client_id"`
	TrackingNumber   string                `json:"tracking_number"`
	GoodsDescription string                `json:"goods_description"`
	OriginCountry    string                `json:"origin_country"`
	DestinationPort  string                `json:"destination_port"`
	PaymentStatus    ShipmentPaymentStatus `json:"payment_status"`
	CompanyName      string                `json:"company_name"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// PendingPaymentView is what the payment page shows before checkout:
// the shipment summary plus the declared customs charge in MWK and its
// USD equivalent in minor units for the hosted checkout.
type PendingPaymentView struct {
	Shipment    Shipment `json:"shipment"`
	Payment     *Payment `json:"payment,omitempty"`
	AmountMWK   float64  `json:"amount_mwk"`
	AmountUSD   float64  `json:"amount_usd"`
	AmountCents int64    `json:"amount_cents"`
	Flash       *Flash   `json:"flash,omitempty"`
}

type Flash struct {
	Kind    string `json:"kind"` // success, error
	Message string `json:"message"`
}
