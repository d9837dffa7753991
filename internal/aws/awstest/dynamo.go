// Package awstest provides in-memory fakes of the AWS client interfaces for
// unit tests. They understand only the expressions the stores in this module
// issue.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// Dynamo is a multi-table DynamoDB fake keyed by a single string partition key.
type Dynamo struct {
	mu       sync.Mutex
	keys     map[string]string
	tables   map[string]map[string]item
	calls    map[string]int
	failures map[string]error
}

func NewDynamo() *Dynamo {
	return &Dynamo{
		keys:     map[string]string{},
		tables:   map[string]map[string]item{},
		calls:    map[string]int{},
		failures: map[string]error{},
	}
}

// CreateTable registers a table with partition key pk.
func (d *Dynamo) CreateTable(name, pk string) *Dynamo {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[name] = pk
	d.tables[name] = map[string]item{}
	return d
}

// FailOn makes every following call of op ("PutItem", "GetItem", "UpdateItem",
// "TransactWriteItems") return err. A nil err clears it.
func (d *Dynamo) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

// Calls reports how often op was invoked.
func (d *Dynamo) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// Item returns a copy of the stored item, or nil.
func (d *Dynamo) Item(table, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	it, ok := d.tables[table][key]
	if !ok {
		return nil
	}
	return clone(it)
}

// Len reports the number of items in table.
func (d *Dynamo) Len(table string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables[table])
}

// Seed stores it unconditionally.
func (d *Dynamo) Seed(table string, it map[string]types.AttributeValue) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key, err := d.keyOf(table, it)
	if err != nil {
		return err
	}
	d.tables[table][key] = clone(it)
	return nil
}

func (d *Dynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("PutItem"); err != nil {
		return nil, err
	}
	table := deref(params.TableName)
	key, err := d.keyOf(table, params.Item)
	if err != nil {
		return nil, err
	}
	current := d.tables[table][key]
	if !evalCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, current) {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	d.tables[table][key] = clone(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *Dynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("GetItem"); err != nil {
		return nil, err
	}
	table := deref(params.TableName)
	key, err := d.keyOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	it, ok := d.tables[table][key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(it)}, nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("UpdateItem"); err != nil {
		return nil, err
	}
	table := deref(params.TableName)
	key, err := d.keyOf(table, params.Key)
	if err != nil {
		return nil, err
	}
	current := d.tables[table][key]
	if !evalCondition(params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, current) {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	next, err := applyUpdate(params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues, current, params.Key)
	if err != nil {
		return nil, err
	}
	d.tables[table][key] = next
	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues != "" && params.ReturnValues != types.ReturnValueNone {
		out.Attributes = clone(next)
	}
	return out, nil
}

func (d *Dynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin("TransactWriteItems"); err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, ti := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		var ok bool
		switch {
		case ti.Put != nil:
			table := deref(ti.Put.TableName)
			key, err := d.keyOf(table, ti.Put.Item)
			if err != nil {
				return nil, err
			}
			ok = evalCondition(ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues, d.tables[table][key])
		case ti.Update != nil:
			table := deref(ti.Update.TableName)
			key, err := d.keyOf(table, ti.Update.Key)
			if err != nil {
				return nil, err
			}
			ok = evalCondition(ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues, d.tables[table][key])
		default:
			return nil, errors.New("awstest: only Put and Update are supported in transactions")
		}
		if !ok {
			failed = true
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed"), Message: strPtr("The conditional request failed")}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range params.TransactItems {
		if ti.Put != nil {
			table := deref(ti.Put.TableName)
			key, _ := d.keyOf(table, ti.Put.Item)
			d.tables[table][key] = clone(ti.Put.Item)
			continue
		}
		table := deref(ti.Update.TableName)
		key, _ := d.keyOf(table, ti.Update.Key)
		next, err := applyUpdate(ti.Update.UpdateExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues, d.tables[table][key], ti.Update.Key)
		if err != nil {
			return nil, err
		}
		d.tables[table][key] = next
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (d *Dynamo) begin(op string) error {
	d.calls[op]++
	return d.failures[op]
}

func (d *Dynamo) keyOf(table string, it item) (string, error) {
	pk, ok := d.keys[table]
	if !ok {
		return "", &types.ResourceNotFoundException{Message: strPtr("Requested resource not found: " + table)}
	}
	v, ok := it[pk].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("awstest: item for %s has no string key %q", table, pk)
	}
	return v.Value, nil
}

// evalCondition supports clauses joined by AND:
// attribute_exists(a), attribute_not_exists(a) and a = :v.
func evalCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, current item) bool {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists("):
			if _, ok := current[resolve(inner(clause), names)]; ok {
				return false
			}
		case strings.HasPrefix(clause, "attribute_exists("):
			if _, ok := current[resolve(inner(clause), names)]; !ok {
				return false
			}
		case strings.Contains(clause, "="):
			lhs, rhs, _ := strings.Cut(clause, "=")
			got, ok := current[resolve(strings.TrimSpace(lhs), names)]
			if !ok || !equal(got, values[strings.TrimSpace(rhs)]) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// applyUpdate supports SET with plain values, attribute copies and
// "if_not_exists(a, :zero) + :inc" arithmetic.
func applyUpdate(expr *string, names map[string]string, values map[string]types.AttributeValue, current, key item) (item, error) {
	next := clone(current)
	if next == nil {
		next = item{}
	}
	for k, v := range key {
		next[k] = v
	}
	e := strings.TrimSpace(deref(expr))
	if !strings.HasPrefix(e, "SET ") {
		return nil, fmt.Errorf("awstest: unsupported update expression %q", e)
	}
	for _, assign := range splitTop(strings.TrimPrefix(e, "SET ")) {
		lhs, rhs, ok := strings.Cut(assign, "=")
		if !ok {
			return nil, fmt.Errorf("awstest: bad assignment %q", assign)
		}
		v, err := evalTerm(strings.TrimSpace(rhs), names, values, current)
		if err != nil {
			return nil, err
		}
		next[resolve(strings.TrimSpace(lhs), names)] = v
	}
	return next, nil
}

func evalTerm(term string, names map[string]string, values map[string]types.AttributeValue, current item) (types.AttributeValue, error) {
	if l, r, ok := strings.Cut(term, " + "); ok {
		a, err := evalTerm(strings.TrimSpace(l), names, values, current)
		if err != nil {
			return nil, err
		}
		b, err := evalTerm(strings.TrimSpace(r), names, values, current)
		if err != nil {
			return nil, err
		}
		x, errA := number(a)
		y, errB := number(b)
		if errA != nil || errB != nil {
			return nil, fmt.Errorf("awstest: non-numeric addition %q", term)
		}
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(x+y, 'f', -1, 64)}, nil
	}
	if strings.HasPrefix(term, "if_not_exists(") {
		attr, fallback, _ := strings.Cut(inner(term), ",")
		if v, ok := current[resolve(strings.TrimSpace(attr), names)]; ok {
			return v, nil
		}
		return evalTerm(strings.TrimSpace(fallback), names, values, current)
	}
	if strings.HasPrefix(term, ":") {
		v, ok := values[term]
		if !ok {
			return nil, fmt.Errorf("awstest: missing value %s", term)
		}
		return v, nil
	}
	v, ok := current[resolve(term, names)]
	if !ok {
		return nil, fmt.Errorf("awstest: missing attribute %s", term)
	}
	return v, nil
}

func splitTop(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func inner(call string) string {
	open := strings.Index(call, "(")
	end := strings.LastIndex(call, ")")
	if open < 0 || end < open {
		return ""
	}
	return strings.TrimSpace(call[open+1 : end])
}

func resolve(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func equal(a, b types.AttributeValue) bool {
	switch x := a.(type) {
	case *types.AttributeValueMemberS:
		y, ok := b.(*types.AttributeValueMemberS)
		return ok && x.Value == y.Value
	case *types.AttributeValueMemberN:
		y, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		fx, errX := strconv.ParseFloat(x.Value, 64)
		fy, errY := strconv.ParseFloat(y.Value, 64)
		return errX == nil && errY == nil && fx == fy
	case *types.AttributeValueMemberBOOL:
		y, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && x.Value == y.Value
	}
	return reflect.DeepEqual(a, b)
}

func number(v types.AttributeValue) (float64, error) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("not a number")
	}
	return strconv.ParseFloat(n.Value, 64)
}

func clone(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string { return &s }
