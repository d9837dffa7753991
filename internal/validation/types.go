package validation

import (
	"github.com/imrishuroy/go-outfit-pipeline/internal/normalize"
	"github.com/imrishuroy/go-outfit-pipeline/internal/ranking"
	"github.com/imrishuroy/go-outfit-pipeline/internal/search"
)

// PipelineRequest is the payload for POST /pipeline
type PipelineRequest struct {
	Request search.Request   `json:"request"`
	Prompt  string           `json:"prompt,omitempty" validate:"max=2000"`
	Weights *ranking.Weights `json:"weights,omitempty"` // optional scoring override
}

// NormalizeRequest is the payload for POST /normalize
type NormalizeRequest struct {
	Message  string            `json:"message" validate:"required,max=2000"`
	History  []string          `json:"history,omitempty" validate:"max=200"`
	Previous *normalize.Output `json:"previous,omitempty"` // earlier /normalize output, echoed back
}

type Selection struct {
	OutfitID string   `json:"outfitId"`
	ItemIDs  []string `json:"itemIds" validate:"required,min=1,dive,required"`
}

type User struct {
	UserID string `json:"userId,omitempty"`
}

// CreateCartRequest is the payload for POST /carts
type CreateCartRequest struct {
	Selection Selection `json:"selection"`
	User      *User     `json:"user,omitempty"`
	Currency  string    `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

// AddItemRequest is the payload for POST /carts/:id/items
type AddItemRequest struct {
	ItemID   string `json:"itemId" validate:"required"`
	Quantity int    `json:"quantity,omitempty" validate:"omitempty,min=1,max=20"` // defaults to 1
}

type Payment struct {
	Provider string `json:"provider" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

type Shipping struct {
	Name       string `json:"name" validate:"required"`
	Address1   string `json:"address1" validate:"required"`
	City       string `json:"city" validate:"required"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required,len=2,alpha"` // ISO 3166-1 alpha-2
}

type Contact struct {
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,e164"`
}

// CheckoutRequest is the payload for POST /checkout
type CheckoutRequest struct {
	CartID   string   `json:"cartId" validate:"required"`
	Payment  Payment  `json:"payment"`
	Shipping Shipping `json:"shipping"`
	Contact  *Contact `json:"contact,omitempty"`
	// ExpectedTotal, when sent, must match the cart total the server computes.
	ExpectedTotal *float64 `json:"expectedTotal,omitempty" validate:"omitempty,gt=0"`
}
