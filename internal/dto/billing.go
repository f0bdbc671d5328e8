package dto

// CreateBillRequest is the payload sent to the billing service for one period.
type CreateBillRequest struct {
	RoomID      string `json:"room_id"`
	BillingType string `json:"billing_type"`
	RequestedBy string `json:"requested_by"`
}

type BillingResult struct {
	BillID string `json:"bill_id"`
	Status string `json:"status"`
}
