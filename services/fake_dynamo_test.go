package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"tonot_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is an in-memory DynamoAPI. It interprets the update and
// condition expressions the services actually emit (SET/ADD/REMOVE,
// attribute_exists, size(), IN, comparisons, list_append), including
// all-or-nothing TransactWriteItems, so the tests exercise the same
// conditional-write semantics the real store enforces.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
	keys   map[string]string

	// beforeTransact, when set, runs once before the next transaction
	// commits. Tests use it to interleave a concurrent writer between a
	// caller's read and its conditional write.
	beforeTransact func()
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
		keys: map[string]string{
			models.UsersTable:             "telegramId",
			models.WaitingPlayersTable:    "telegramId",
			models.WaitingPlayersX10Table: "telegramId",
			models.MatchesTable:           "matchId",
			models.MatchesX10Table:        "matchId",
			models.ReferralsTable:         "referralId",
		},
	}
}

func (f *fakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	tbl, ok := f.tables[name]
	if !ok {
		tbl = map[string]map[string]types.AttributeValue{}
		f.tables[name] = tbl
	}
	return tbl
}

func (f *fakeDynamo) keyOf(tableName string, item map[string]types.AttributeValue) string {
	attr := f.keys[tableName]
	if v, ok := item[attr].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// --- DynamoAPI ---

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.put(&types.Put{
		TableName:           params.TableName,
		Item:                params.Item,
		ConditionExpression: params.ConditionExpression,
	}, true); err != nil {
		return nil, err
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.table(*params.TableName)[f.keyOf(*params.TableName, params.Key)]
	if item == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, err := f.update(&types.Update{
		TableName:                 params.TableName,
		Key:                       params.Key,
		UpdateExpression:          params.UpdateExpression,
		ConditionExpression:       params.ConditionExpression,
		ExpressionAttributeNames:  params.ExpressionAttributeNames,
		ExpressionAttributeValues: params.ExpressionAttributeValues,
	}, true)
	if err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.del(&types.Delete{
		TableName:           params.TableName,
		Key:                 params.Key,
		ConditionExpression: params.ConditionExpression,
	}, true); err != nil {
		return nil, err
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []map[string]types.AttributeValue
	for _, item := range f.table(*params.TableName) {
		items = append(items, copyItem(item))
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	hook := f.beforeTransact
	f.beforeTransact = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Conditions first, against the pre-transaction state.
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if !f.checkTransactItem(it) {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil:
			_ = f.put(it.Put, false)
		case it.Delete != nil:
			_ = f.del(it.Delete, false)
		case it.Update != nil:
			_, _ = f.update(it.Update, false)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) checkTransactItem(it types.TransactWriteItem) bool {
	switch {
	case it.Put != nil:
		existing := f.table(*it.Put.TableName)[f.keyOf(*it.Put.TableName, it.Put.Item)]
		return evalCondition(existing, it.Put.ConditionExpression, it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues)
	case it.Delete != nil:
		existing := f.table(*it.Delete.TableName)[f.keyOf(*it.Delete.TableName, it.Delete.Key)]
		return evalCondition(existing, it.Delete.ConditionExpression, it.Delete.ExpressionAttributeNames, it.Delete.ExpressionAttributeValues)
	case it.Update != nil:
		existing := f.table(*it.Update.TableName)[f.keyOf(*it.Update.TableName, it.Update.Key)]
		return evalCondition(existing, it.Update.ConditionExpression, it.Update.ExpressionAttributeNames, it.Update.ExpressionAttributeValues)
	}
	return true
}

// --- single-item primitives ---

func (f *fakeDynamo) put(p *types.Put, checkCondition bool) error {
	tbl := f.table(*p.TableName)
	key := f.keyOf(*p.TableName, p.Item)
	if checkCondition && !evalCondition(tbl[key], p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
		return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	tbl[key] = copyItem(p.Item)
	return nil
}

func (f *fakeDynamo) del(d *types.Delete, checkCondition bool) error {
	tbl := f.table(*d.TableName)
	key := f.keyOf(*d.TableName, d.Key)
	if checkCondition && !evalCondition(tbl[key], d.ConditionExpression, d.ExpressionAttributeNames, d.ExpressionAttributeValues) {
		return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	delete(tbl, key)
	return nil
}

func (f *fakeDynamo) update(u *types.Update, checkCondition bool) (map[string]types.AttributeValue, error) {
	tbl := f.table(*u.TableName)
	key := f.keyOf(*u.TableName, u.Key)
	item := tbl[key]
	if checkCondition && !evalCondition(item, u.ConditionExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	if item == nil {
		// UpdateItem upserts, like the real thing.
		item = copyItem(u.Key)
	} else {
		item = copyItem(item)
	}
	applyUpdate(item, *u.UpdateExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
	tbl[key] = item
	return item, nil
}

// --- expression interpreter ---

// applyUpdate handles the SET / ADD / REMOVE clauses the services use,
// including list_append and indexed REMOVE.
func applyUpdate(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) {
	for keyword, body := range splitSections(expr) {
		for _, part := range splitTopLevel(body, ',') {
			part = strings.TrimSpace(part)
			switch keyword {
			case "SET":
				applySet(item, part, names, values)
			case "ADD":
				applyAdd(item, part, names, values)
			case "REMOVE":
				applyRemove(item, part, names)
			}
		}
	}
}

func applySet(item map[string]types.AttributeValue, assignment string, names map[string]string, values map[string]types.AttributeValue) {
	sides := strings.SplitN(assignment, "=", 2)
	name := resolveName(strings.TrimSpace(sides[0]), names)
	rhs := strings.TrimSpace(sides[1])

	if strings.HasPrefix(rhs, "list_append(") {
		args := splitTopLevel(strings.TrimSuffix(strings.TrimPrefix(rhs, "list_append("), ")"), ',')
		var base []types.AttributeValue
		if existing, ok := item[resolveName(strings.TrimSpace(args[0]), names)].(*types.AttributeValueMemberL); ok {
			base = append(base, existing.Value...)
		}
		if appended, ok := values[strings.TrimSpace(args[1])].(*types.AttributeValueMemberL); ok {
			base = append(base, appended.Value...)
		}
		item[name] = &types.AttributeValueMemberL{Value: base}
		return
	}
	item[name] = values[rhs]
}

func applyAdd(item map[string]types.AttributeValue, entry string, names map[string]string, values map[string]types.AttributeValue) {
	fields := strings.Fields(entry)
	name := resolveName(fields[0], names)
	delta, _ := strconv.ParseFloat(numValue(values[fields[1]]), 64)

	current := float64(0)
	if existing, ok := item[name].(*types.AttributeValueMemberN); ok {
		current, _ = strconv.ParseFloat(existing.Value, 64)
	}
	item[name] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(current+delta, 'f', -1, 64)}
}

func applyRemove(item map[string]types.AttributeValue, path string, names map[string]string) {
	name, idx := splitIndex(resolveName(path, names))
	list, ok := item[name].(*types.AttributeValueMemberL)
	if !ok || idx < 0 || idx >= len(list.Value) {
		return
	}
	item[name] = &types.AttributeValueMemberL{
		Value: append(append([]types.AttributeValue{}, list.Value[:idx]...), list.Value[idx+1:]...),
	}
}

// evalCondition evaluates an AND-joined condition expression against an item
// (nil means the item does not exist). A nil expression always passes.
func evalCondition(item map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) bool {
	if expr == nil || *expr == "" {
		return true
	}
	for _, term := range strings.Split(*expr, " AND ") {
		if !evalTerm(item, strings.TrimSpace(term), names, values) {
			return false
		}
	}
	return true
}

func evalTerm(item map[string]types.AttributeValue, term string, names map[string]string, values map[string]types.AttributeValue) bool {
	switch {
	case strings.HasPrefix(term, "attribute_exists("):
		path := strings.TrimSuffix(strings.TrimPrefix(term, "attribute_exists("), ")")
		_, ok := resolvePath(item, path, names)
		return item != nil && ok
	case strings.HasPrefix(term, "attribute_not_exists("):
		path := strings.TrimSuffix(strings.TrimPrefix(term, "attribute_not_exists("), ")")
		_, ok := resolvePath(item, path, names)
		return item == nil || !ok
	case strings.Contains(term, " IN ("):
		if item == nil {
			return false
		}
		parts := strings.SplitN(term, " IN (", 2)
		actual, ok := resolvePath(item, strings.TrimSpace(parts[0]), names)
		if !ok {
			return false
		}
		for _, ref := range splitTopLevel(strings.TrimSuffix(parts[1], ")"), ',') {
			if attrEqual(actual, values[strings.TrimSpace(ref)]) {
				return true
			}
		}
		return false
	}

	if item == nil {
		return false
	}
	for _, op := range []string{">=", "<=", "<>", "=", ">", "<"} {
		lhs, rhs, found := strings.Cut(term, " "+op+" ")
		if !found {
			continue
		}
		var actual types.AttributeValue
		lhs = strings.TrimSpace(lhs)
		if strings.HasPrefix(lhs, "size(") {
			path := strings.TrimSuffix(strings.TrimPrefix(lhs, "size("), ")")
			list, ok := resolvePath(item, path, names)
			if !ok {
				return false
			}
			l, ok := list.(*types.AttributeValueMemberL)
			if !ok {
				return false
			}
			actual = &types.AttributeValueMemberN{Value: strconv.Itoa(len(l.Value))}
		} else {
			var ok bool
			actual, ok = resolvePath(item, lhs, names)
			if !ok {
				return false
			}
		}
		return compareAttrs(actual, op, values[strings.TrimSpace(rhs)])
	}
	return false
}

func compareAttrs(a types.AttributeValue, op string, b types.AttributeValue) bool {
	switch op {
	case "=":
		return attrEqual(a, b)
	case "<>":
		return !attrEqual(a, b)
	}
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if aok && bok {
		af, _ := strconv.ParseFloat(an.Value, 64)
		bf, _ := strconv.ParseFloat(bn.Value, 64)
		switch op {
		case ">=":
			return af >= bf
		case "<=":
			return af <= bf
		case ">":
			return af > bf
		case "<":
			return af < bf
		}
	}
	as, aok := a.(*types.AttributeValueMemberS)
	bs, bok := b.(*types.AttributeValueMemberS)
	if aok && bok {
		switch op {
		case ">=":
			return as.Value >= bs.Value
		case "<=":
			return as.Value <= bs.Value
		case ">":
			return as.Value > bs.Value
		case "<":
			return as.Value < bs.Value
		}
	}
	return false
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

// resolvePath walks name, name[i], and name[i].field paths.
func resolvePath(item map[string]types.AttributeValue, path string, names map[string]string) (types.AttributeValue, bool) {
	if item == nil {
		return nil, false
	}
	var current types.AttributeValue
	for i, seg := range strings.Split(resolveName(path, names), ".") {
		name, idx := splitIndex(seg)
		var next types.AttributeValue
		if i == 0 {
			next = item[name]
		} else {
			m, ok := current.(*types.AttributeValueMemberM)
			if !ok {
				return nil, false
			}
			next = m.Value[name]
		}
		if next == nil {
			return nil, false
		}
		if idx >= 0 {
			list, ok := next.(*types.AttributeValueMemberL)
			if !ok || idx >= len(list.Value) {
				return nil, false
			}
			next = list.Value[idx]
		}
		current = next
	}
	return current, current != nil
}

func resolveName(s string, names map[string]string) string {
	for alias, real := range names {
		s = strings.ReplaceAll(s, alias, real)
	}
	return s
}

func splitIndex(seg string) (string, int) {
	open := strings.Index(seg, "[")
	if open < 0 {
		return seg, -1
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(seg[open+1:], "]"))
	if err != nil {
		return seg[:open], -1
	}
	return seg[:open], idx
}

// splitSections slices an update expression into its SET/ADD/REMOVE bodies.
func splitSections(expr string) map[string]string {
	sections := map[string]string{}
	current := ""
	for _, word := range strings.Fields(expr) {
		switch word {
		case "SET", "ADD", "REMOVE":
			current = word
			sections[current] = ""
		default:
			sections[current] = strings.TrimSpace(sections[current] + " " + word)
		}
	}
	delete(sections, "")
	return sections
}

// splitTopLevel splits on sep outside parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func numValue(av types.AttributeValue) string {
	if n, ok := av.(*types.AttributeValueMemberN); ok {
		return n.Value
	}
	return "0"
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// --- test helpers ---

func (f *fakeDynamo) seed(t *testing.T, tableName string, item interface{}) {
	t.Helper()
	marshaled, err := attributevalue.MarshalMap(item)
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table(tableName)[f.keyOf(tableName, marshaled)] = marshaled
}

func (f *fakeDynamo) load(t *testing.T, tableName, key string, out interface{}) bool {
	t.Helper()
	f.mu.Lock()
	item := f.table(tableName)[key]
	f.mu.Unlock()
	if item == nil {
		return false
	}
	require.NoError(t, attributevalue.UnmarshalMap(item, out))
	return true
}

func (f *fakeDynamo) count(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.table(tableName))
}

// notifierEvent records one Emit call.
type notifierEvent struct {
	Room  string
	Event string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
}

func (n *recordingNotifier) Emit(room, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifierEvent{Room: room, Event: event})
}

func (n *recordingNotifier) has(room, event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.Room == room && e.Event == event {
			return true
		}
	}
	return false
}
