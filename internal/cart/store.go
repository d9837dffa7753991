package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-outfit-pipeline/internal/aws"
	"github.com/imrishuroy/go-outfit-pipeline/internal/catalog"
)

var (
	ErrNotFound         = errors.New("cart not found")
	ErrUnknownItem      = errors.New("unknown catalog item")
	ErrEmptySelection   = errors.New("selection has no items")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrCurrencyMismatch = errors.New("item currency does not match cart currency")
	// ErrConflict means concurrent writers kept winning the version check.
	ErrConflict = errors.New("cart modified concurrently")
)

const maxWriteAttempts = 3

// ItemLookup resolves catalog items by id. *catalog.Catalog satisfies it.
type ItemLookup interface {
	Lookup(id string) (catalog.Item, bool)
}

// Store persists carts in DynamoDB with optimistic versioning.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	items     ItemLookup
	nowFunc   func() time.Time
	newID     func() string
}

func NewStore(client aws.DynamoDBAPI, tableName string, items ItemLookup) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		items:     items,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// Create stores a cart holding one of each selected item.
func (s *Store) Create(ctx context.Context, in NewCart) (*Cart, error) {
	if len(in.Selection.ItemIDs) == 0 {
		return nil, ErrEmptySelection
	}
	id := in.CartID
	if id == "" {
		id = s.newID()
	}
	now := s.nowFunc().UTC()
	c := &Cart{
		CartID:    id,
		UserID:    in.UserID,
		OutfitID:  in.Selection.OutfitID,
		Totals:    Totals{Currency: strings.ToUpper(in.Currency)},
		CreatedAt: now,
	}
	for _, itemID := range in.Selection.ItemIDs {
		addLine(c, itemID, 1)
	}
	if err := s.price(c); err != nil {
		return nil, err
	}
	if err := s.put(ctx, c, 0); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns ErrNotFound when no cart has id.
func (s *Store) Get(ctx context.Context, id string) (*Cart, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"cart_id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var c Cart
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &c, nil
}

// AddItem adds qty of itemID, merging with an existing line.
func (s *Store) AddItem(ctx context.Context, id, itemID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	return s.modify(ctx, id, func(c *Cart) { addLine(c, itemID, qty) })
}

// RemoveItem drops the line for itemID. Removing an absent item is a no-op.
func (s *Store) RemoveItem(ctx context.Context, id, itemID string) (*Cart, error) {
	return s.modify(ctx, id, func(c *Cart) {
		lines := c.LineItems[:0]
		for _, l := range c.LineItems {
			if l.ItemID != itemID {
				lines = append(lines, l)
			}
		}
		c.LineItems = lines
	})
}

func (s *Store) modify(ctx context.Context, id string, change func(*Cart)) (*Cart, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		c, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		version := c.Version
		change(c)
		if err := s.price(c); err != nil {
			return nil, err
		}
		err = s.put(ctx, c, version)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, ErrConflict
}

// put writes c as version+1, conditioned on the stored version being version
// (or on the cart not existing when version is 0).
func (s *Store) put(ctx context.Context, c *Cart, version int) error {
	c.Version = version + 1
	c.UpdatedAt = s.nowFunc().UTC()
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	in := &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}
	if version == 0 {
		in.ConditionExpression = awsString("attribute_not_exists(cart_id)")
	} else {
		in.ConditionExpression = awsString("#v = :v")
		in.ExpressionAttributeNames = map[string]string{"#v": "version"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.Itoa(version)},
		}
	}
	if _, err := s.client.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// price recomputes totals from the catalog. Shipping and tax are flat zero.
func (s *Store) price(c *Cart) error {
	var subtotal float64
	for _, l := range c.LineItems {
		it, ok := s.items.Lookup(l.ItemID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItem, l.ItemID)
		}
		cur := strings.ToUpper(it.Currency)
		if c.Totals.Currency == "" {
			c.Totals.Currency = cur
		}
		if cur != c.Totals.Currency {
			return fmt.Errorf("%w: %s is %s, cart is %s", ErrCurrencyMismatch, l.ItemID, cur, c.Totals.Currency)
		}
		subtotal += it.Price * float64(l.Quantity)
	}
	if c.Totals.Currency == "" {
		c.Totals.Currency = catalog.DefaultCurrency
	}
	c.Totals.Subtotal = roundCents(subtotal)
	c.Totals.Shipping = 0
	c.Totals.Tax = 0
	c.Totals.Total = roundCents(c.Totals.Subtotal + c.Totals.Shipping + c.Totals.Tax)
	return nil
}

func addLine(c *Cart, itemID string, qty int) {
	for i := range c.LineItems {
		if c.LineItems[i].ItemID == itemID {
			c.LineItems[i].Quantity += qty
			return
		}
	}
	c.LineItems = append(c.LineItems, LineItem{ItemID: itemID, Quantity: qty})
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
