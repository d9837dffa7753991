package cart

import "time"

// Selection is the outfit a shopper picked from the ranked options.
type Selection struct {
	OutfitID string   `json:"outfitId"`
	ItemIDs  []string `json:"itemIds"`
}

type LineItem struct {
	ItemID   string `dynamodbav:"item_id" json:"itemId"`
	Quantity int    `dynamodbav:"quantity" json:"quantity"`
}

// Totals are derived from catalog prices on every write.
type Totals struct {
	Currency string  `dynamodbav:"currency" json:"currency"`
	Subtotal float64 `dynamodbav:"subtotal" json:"subtotal"`
	Tax      float64 `dynamodbav:"tax" json:"tax"`
	Shipping float64 `dynamodbav:"shipping" json:"shipping"`
	Total    float64 `dynamodbav:"total" json:"total"`
}

// Cart represents the item stored in the carts DynamoDB table.
type Cart struct {
	CartID    string     `dynamodbav:"cart_id" json:"cartId"` // PK
	UserID    string     `dynamodbav:"user_id,omitempty" json:"userId,omitempty"`
	OutfitID  string     `dynamodbav:"outfit_id,omitempty" json:"outfitId,omitempty"`
	LineItems []LineItem `dynamodbav:"line_items" json:"lineItems"`
	Totals    Totals     `dynamodbav:"totals" json:"totals"`
	Version   int        `dynamodbav:"version" json:"-"`
	CreatedAt time.Time  `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `dynamodbav:"updated_at" json:"updatedAt"`
}

// NewCart describes a cart to create. CartID is generated when empty;
// Currency defaults to the items' currency.
type NewCart struct {
	CartID    string
	Selection Selection
	UserID    string
	Currency  string
}
