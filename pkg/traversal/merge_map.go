package traversal

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/orneryd/nornictrav/pkg/storage"
)

// Token is the closed set of non-property keys a merge map may use.
type Token int

const (
	// TokenID is T.id: the element id.
	TokenID Token = iota + 1
	// TokenLabel is T.label: the vertex label or edge type.
	TokenLabel
	// TokenOut is Direction.OUT: the edge's out (start) vertex.
	TokenOut
	// TokenIn is Direction.IN: the edge's in (end) vertex.
	TokenIn
)

func (t Token) String() string {
	switch t {
	case TokenID:
		return "T.id"
	case TokenLabel:
		return "T.label"
	case TokenOut:
		return "Direction.OUT"
	case TokenIn:
		return "Direction.IN"
	default:
		return fmt.Sprintf("Token(%d)", int(t))
	}
}

// ParseToken parses the String form of a token.
func ParseToken(s string) (Token, bool) {
	switch s {
	case "T.id":
		return TokenID, true
	case "T.label":
		return TokenLabel, true
	case "Direction.OUT":
		return TokenOut, true
	case "Direction.IN":
		return TokenIn, true
	}
	return 0, false
}

// Merge names merge options, and doubles as the endpoint self-reference
// value: MergeOutV under Direction.OUT means "resolve with option(OutV)".
type Merge int

const (
	MergeOnCreate Merge = iota + 1
	MergeOnMatch
	MergeOutV
	MergeInV
)

func (m Merge) String() string {
	switch m {
	case MergeOnCreate:
		return "Merge.onCreate"
	case MergeOnMatch:
		return "Merge.onMatch"
	case MergeOutV:
		return "Merge.outV"
	case MergeInV:
		return "Merge.inV"
	default:
		return fmt.Sprintf("Merge(%d)", int(m))
	}
}

// ParseMerge parses the String form of a merge option.
func ParseMerge(s string) (Merge, bool) {
	switch s {
	case "Merge.onCreate":
		return MergeOnCreate, true
	case "Merge.onMatch":
		return MergeOnMatch, true
	case "Merge.outV":
		return MergeOutV, true
	case "Merge.inV":
		return MergeInV, true
	}
	return 0, false
}

// Key is a merge map key: either a Token or a property name.
type Key struct {
	token Token
	prop  string
}

// TokenKey returns the key for a token.
func TokenKey(t Token) Key { return Key{token: t} }

// PropKey returns the key for a property name.
func PropKey(name string) Key { return Key{prop: name} }

// IsToken reports whether k is a token key.
func (k Key) IsToken() bool { return k.token != 0 }

// Token returns the token of a token key, or 0.
func (k Key) Token() Token { return k.token }

// Property returns the property name of a property key, or "".
func (k Key) Property() string { return k.prop }

func (k Key) String() string {
	if k.IsToken() {
		return k.token.String()
	}
	return k.prop
}

// Map is an ordered merge map.
type Map struct {
	keys   []Key
	values map[Key]any
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{values: make(map[Key]any)}
}

// M builds a Map from alternating keys and values. A key is a Token, a Key
// or a property name string. M panics on malformed input; it is meant for
// literals.
func M(kvs ...any) *Map {
	if len(kvs)%2 != 0 {
		panic("traversal.M: odd number of arguments")
	}
	m := NewMap()
	for i := 0; i < len(kvs); i += 2 {
		switch k := kvs[i].(type) {
		case Token:
			m.Set(TokenKey(k), kvs[i+1])
		case Key:
			m.Set(k, kvs[i+1])
		case string:
			m.Set(PropKey(k), kvs[i+1])
		default:
			panic(fmt.Sprintf("traversal.M: unsupported key type %T", kvs[i]))
		}
	}
	return m
}

// Set binds k to v. Re-setting a key keeps its position.
func (m *Map) Set(k Key, v any) *Map {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
	return m
}

// Get returns the value bound to k.
func (m *Map) Get(k Key) (any, bool) {
	v, ok := m.values[k]
	return v, ok
}

// GetToken returns the value bound to token t.
func (m *Map) GetToken(t Token) (any, bool) { return m.Get(TokenKey(t)) }

// Has reports whether k is bound.
func (m *Map) Has(k Key) bool {
	_, ok := m.values[k]
	return ok
}

// Delete unbinds k.
func (m *Map) Delete(k Key) {
	if _, ok := m.values[k]; !ok {
		return
	}
	delete(m.values, k)
	for i, key := range m.keys {
		if key == k {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []Key { return append([]Key(nil), m.keys...) }

// Len returns the number of keys.
func (m *Map) Len() int { return len(m.keys) }

// Clone returns a shallow copy.
func (m *Map) Clone() *Map {
	c := &Map{keys: append([]Key(nil), m.keys...), values: make(map[Key]any, len(m.values))}
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}

// PutAll binds every key of other, overwriting existing bindings.
func (m *Map) PutAll(other *Map) {
	for _, k := range other.keys {
		m.Set(k, other.values[k])
	}
}

// Properties returns the property-keyed entries.
func (m *Map) Properties() map[string]any {
	props := make(map[string]any)
	for _, k := range m.keys {
		if !k.IsToken() {
			props[k.prop] = m.values[k]
		}
	}
	return props
}

// String renders the map as {k: v, ...} in key order.
func (m *Map) String() string {
	parts := make([]string, len(m.keys))
	for i, k := range m.keys {
		parts[i] = fmt.Sprintf("%s: %v", k, m.values[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// toMap converts a materialized value into a Map.
func toMap(v any) (*Map, bool) {
	switch m := v.(type) {
	case *Map:
		if m == nil {
			return nil, false
		}
		return m, true
	case map[string]any:
		out := NewMap()
		for _, k := range sortedKeys(m) {
			out.Set(PropKey(k), m[k])
		}
		return out, true
	case map[Key]any:
		out := NewMap()
		keys := make([]Key, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sortKeys(keys)
		for _, k := range keys {
			out.Set(k, m[k])
		}
		return out, true
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortKeys orders tokens first, then properties by name.
func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.IsToken() != b.IsToken() {
			return a.IsToken()
		}
		if a.IsToken() {
			return a.token < b.token
		}
		return a.prop < b.prop
	})
}

// ============================================================================
// Validation
// ============================================================================

type mapRole int

const (
	roleMerge mapRole = iota
	roleOnMatch
	roleOnCreate
)

func (r mapRole) String() string {
	switch r {
	case roleOnMatch:
		return "option(onMatch)"
	case roleOnCreate:
		return "option(onCreate)"
	default:
		return "merge"
	}
}

// validateMap checks every key of m against the tokens allowed for its role.
// On-match maps take property keys only: ids and labels of an existing
// element are immutable and its endpoints cannot be re-targeted.
func validateMap(step string, role mapRole, m *Map, allowed []Token) error {
	for _, k := range m.keys {
		v := m.values[k]
		if !k.IsToken() {
			if k.prop == "" {
				return fmt.Errorf("%w: %s %s: empty property key", ErrValidation, step, role)
			}
			if v == nil {
				return fmt.Errorf("%w: %s %s: property %q has a nil value", ErrValidation, step, role, k.prop)
			}
			continue
		}
		if role == roleOnMatch {
			return fmt.Errorf("%w: %s %s expects property keys only, got %s", ErrValidation, step, role, k)
		}
		if !containsToken(allowed, k.token) {
			return fmt.Errorf("%w: %s %s key %s is not allowed; allowed tokens are %s",
				ErrValidation, step, role, k, tokenList(allowed))
		}
		if v == nil {
			return fmt.Errorf("%w: %s %s: %s has a nil value", ErrValidation, step, role, k)
		}
		switch k.token {
		case TokenLabel:
			s, ok := v.(string)
			if !ok || s == "" {
				return fmt.Errorf("%w: %s %s: %s must be a non-empty string, got %T", ErrValidation, step, role, k, v)
			}
		case TokenID:
			if _, ok := elementID(v); !ok {
				return fmt.Errorf("%w: %s %s: %s must be a scalar id, got %T", ErrValidation, step, role, k, v)
			}
		case TokenOut, TokenIn:
			if _, ref := v.(Merge); ref {
				continue
			}
			if _, ok := elementID(v); !ok {
				return fmt.Errorf("%w: %s %s: %s must be a vertex, a vertex id or a Merge token, got %T",
					ErrValidation, step, role, k, v)
			}
		}
	}
	return nil
}

// validateNoOverrides rejects an on-create map rebinding a merge key to a
// different value. Repeating the same value is allowed.
func validateNoOverrides(step string, merge, onCreate *Map) error {
	for _, k := range onCreate.keys {
		mv, ok := merge.values[k]
		if !ok {
			continue
		}
		if !valuesEqual(mv, onCreate.values[k]) {
			return fmt.Errorf("%w: %s option(onCreate) cannot override merge key %s (%v -> %v)",
				ErrValidation, step, k, mv, onCreate.values[k])
		}
	}
	return nil
}

func containsToken(tokens []Token, t Token) bool {
	for _, x := range tokens {
		if x == t {
			return true
		}
	}
	return false
}

func tokenList(tokens []Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ============================================================================
// Values
// ============================================================================

// elementID normalizes an id value to the store's string id form.
func elementID(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case storage.NodeID:
		return string(x), x != ""
	case storage.EdgeID:
		return string(x), x != ""
	case *storage.Node:
		if x == nil {
			return "", false
		}
		return string(x.ID), true
	case *storage.Edge:
		if x == nil {
			return "", false
		}
		return string(x.ID), true
	case int:
		return strconv.FormatInt(int64(x), 10), true
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(x).Int(), 10), true
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(x).Uint(), 10), true
	case float64:
		if x == math.Trunc(x) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case fmt.Stringer:
		s := x.String()
		return s, s != ""
	}
	return "", false
}

// valuesEqual compares property values, treating numbers of different Go
// types as equal when they denote the same number.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// propertiesMatch reports whether props carries every property of m.
func propertiesMatch(props map[string]any, m *Map) bool {
	for _, k := range m.keys {
		if k.IsToken() {
			continue
		}
		v, ok := props[k.prop]
		if !ok || !valuesEqual(v, m.values[k]) {
			return false
		}
	}
	return true
}
