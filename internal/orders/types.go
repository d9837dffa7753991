package orders

import "time"

// Order statuses
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusConfirmed  = "CONFIRMED"
	StatusFailed     = "FAILED"
)

// LineItem is a priced cart line frozen at checkout.
type LineItem struct {
	ItemID    string  `dynamodbav:"item_id" json:"itemId"`
	Title     string  `dynamodbav:"title,omitempty" json:"title,omitempty"`
	Shop      string  `dynamodbav:"shop,omitempty" json:"shop,omitempty"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	UnitPrice float64 `dynamodbav:"unit_price" json:"unitPrice"`
}

type Shipping struct {
	Name       string `dynamodbav:"name" json:"name"`
	Address1   string `dynamodbav:"address1" json:"address1"`
	City       string `dynamodbav:"city" json:"city"`
	Region     string `dynamodbav:"region,omitempty" json:"region,omitempty"`
	PostalCode string `dynamodbav:"postal_code" json:"postalCode"`
	Country    string `dynamodbav:"country" json:"country"`
}

type Contact struct {
	Email string `dynamodbav:"email,omitempty" json:"email,omitempty"`
	Phone string `dynamodbav:"phone,omitempty" json:"phone,omitempty"`
}

// Payment is the simulated payment instrument. The token never leaves the store.
type Payment struct {
	Provider string `dynamodbav:"provider" json:"provider"`
	Token    string `dynamodbav:"token" json:"-"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID    string     `dynamodbav:"order_id" json:"orderId"` // PK
	CartID     string     `dynamodbav:"cart_id" json:"cartId"`
	UserID     string     `dynamodbav:"user_id,omitempty" json:"userId,omitempty"`
	Status     string     `dynamodbav:"status" json:"status"` // PENDING | PROCESSING | CONFIRMED | FAILED
	Currency   string     `dynamodbav:"currency" json:"currency"`
	Total      float64    `dynamodbav:"total" json:"total"`
	LineItems  []LineItem `dynamodbav:"line_items" json:"lineItems"`
	Shipping   Shipping   `dynamodbav:"shipping" json:"shipping"`
	Contact    Contact    `dynamodbav:"contact,omitempty" json:"contact,omitempty"`
	Payment    Payment    `dynamodbav:"payment" json:"payment"`
	ReceiptURL string     `dynamodbav:"receipt_url,omitempty" json:"receiptUrl,omitempty"`
	Message    string     `dynamodbav:"message,omitempty" json:"message,omitempty"`
	CreatedAt  time.Time  `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `dynamodbav:"updated_at" json:"updatedAt"`
	Attempts   int        `dynamodbav:"attempts,omitempty" json:"attempts,omitempty"`
}

// Terminal reports whether no further transition is expected.
func (o Order) Terminal() bool {
	return o.Status == StatusConfirmed || o.Status == StatusFailed
}
