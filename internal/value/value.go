package value

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	NIL_OBJ     = "NIL"
	BOOLEAN_OBJ = "BOOLEAN"
	NUMBER_OBJ  = "NUMBER"
	STRING_OBJ  = "STRING"

	LIST_OBJ      = "LIST"
	MAP_OBJ       = "MAP"
	FUNC_OBJ      = "FUNC"
	NAMESPACE_OBJ = "NAMESPACE"
	ERROR_OBJ     = "ERROR"
)

var (
	NIL   = &Nil{}
	TRUE  = &Boolean{Value: true}
	FALSE = &Boolean{Value: false}
)

type Type string

// Value is the currency exchanged between interpreter contexts. Only
// primitives cross a context boundary unwrapped; everything else travels
// behind a proxy.
type Value interface {
	Type() Type
	Inspect() string
}

// MapKey identifies a hashable value for map storage and proxy caches.
type MapKey struct {
	Type  Type
	Value uint64
}

type Hashable interface {
	Value
	MapKey() MapKey
}

// Callable is any value that can be invoked with positional and keyword
// arguments.
type Callable interface {
	Value
	Call(args []Value, kwargs map[string]Value) (Value, error)
}

// Attributed values expose named attributes for proxy forwarding.
type Attributed interface {
	Value
	Attr(name string) (Value, bool)
}

// MutableAttrs values additionally accept attribute writes.
type MutableAttrs interface {
	Attributed
	SetAttr(name string, v Value) error
}

// Proxy marks values that already stand in for a value owned by another
// context. Proxies pass through argument/result translation untouched.
type Proxy interface {
	Value
	ProxiedValue() Value
}

type Nil struct{}

func (n *Nil) Type() Type      { return NIL_OBJ }
func (n *Nil) Inspect() string { return "nil" }
func (n *Nil) MapKey() MapKey  { return MapKey{Type: NIL_OBJ} }

type Boolean struct {
	Value bool
}

func (b *Boolean) Type() Type      { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string { return fmt.Sprintf("%t", b.Value) }
func (b *Boolean) MapKey() MapKey {
	var value uint64
	if b.Value {
		value = 1
	}
	return MapKey{Type: b.Type(), Value: value}
}

type Number struct {
	Value float64
}

func (n *Number) Type() Type { return NUMBER_OBJ }
func (n *Number) Inspect() string {
	if n.Value == math.Trunc(n.Value) && math.Abs(n.Value) < 1e15 {
		return fmt.Sprintf("%d", int64(n.Value))
	}
	return fmt.Sprintf("%g", n.Value)
}
func (n *Number) MapKey() MapKey {
	return MapKey{Type: n.Type(), Value: math.Float64bits(n.Value)}
}

type String struct {
	Value string
}

func (s *String) Type() Type      { return STRING_OBJ }
func (s *String) Inspect() string { return s.Value }
func (s *String) MapKey() MapKey {
	h := fnv.New64a()
	for _, r := range s.Value {
		var buf [4]byte
		n := utf8.EncodeRune(buf[:], r)
		h.Write(buf[:n])
	}
	return MapKey{Type: s.Type(), Value: h.Sum64()}
}

type List struct {
	Items []Value
}

func (l *List) Type() Type { return LIST_OBJ }
func (l *List) Inspect() string {
	var out bytes.Buffer
	elements := []string{}
	for _, item := range l.Items {
		elements = append(elements, item.Inspect())
	}
	out.WriteString("[")
	out.WriteString(strings.Join(elements, ", "))
	out.WriteString("]")
	return out.String()
}

// MapPair keeps the original key value alongside the stored value.
type MapPair struct {
	Key   Value
	Value Value
}

type Map struct {
	Pairs map[MapKey]MapPair
}

func NewMap() *Map {
	return &Map{Pairs: make(map[MapKey]MapPair)}
}

func (m *Map) Type() Type { return MAP_OBJ }
func (m *Map) Inspect() string {
	var out bytes.Buffer
	pairs := []string{}
	for _, pair := range m.Pairs {
		pairs = append(pairs, fmt.Sprintf("%s: %s", pair.Key.Inspect(), pair.Value.Inspect()))
	}
	sort.Strings(pairs)
	out.WriteString("{")
	out.WriteString(strings.Join(pairs, ", "))
	out.WriteString("}")
	return out.String()
}

func (m *Map) Get(key Hashable) (Value, bool) {
	pair, ok := m.Pairs[key.MapKey()]
	if !ok {
		return nil, false
	}
	return pair.Value, true
}

func (m *Map) Set(key Hashable, v Value) {
	m.Pairs[key.MapKey()] = MapPair{Key: key, Value: v}
}

// Attr exposes string keys as attributes so maps can sit behind an
// object proxy.
func (m *Map) Attr(name string) (Value, bool) {
	return m.Get(&String{Value: name})
}

func (m *Map) SetAttr(name string, v Value) error {
	m.Set(&String{Value: name}, v)
	return nil
}

// Func is a callable implemented by native Go code, typically a closure
// over a context's state or a bridge into the host API.
type Func struct {
	Name string
	Fn   func(args []Value, kwargs map[string]Value) (Value, error)
}

func (f *Func) Type() Type { return FUNC_OBJ }
func (f *Func) Inspect() string {
	if f.Name == "" {
		return "fn(...)"
	}
	return fmt.Sprintf("fn %s(...)", f.Name)
}

func (f *Func) Call(args []Value, kwargs map[string]Value) (Value, error) {
	return f.Fn(args, kwargs)
}

// Namespace is a mutable set of named bindings. Context globals and host
// modules are namespaces. Mutation is serialized by the execution lock;
// the namespace itself carries no locking.
type Namespace struct {
	Name     string
	bindings map[string]Value
}

func NewNamespace(name string) *Namespace {
	return &Namespace{Name: name, bindings: make(map[string]Value)}
}

func (ns *Namespace) Type() Type { return NAMESPACE_OBJ }
func (ns *Namespace) Inspect() string {
	var out bytes.Buffer
	out.WriteString("namespace ")
	out.WriteString(ns.Name)
	out.WriteString(" {")
	names := ns.Names()
	for _, name := range names {
		out.WriteString(fmt.Sprintf("\n  %s: %s,", name, ns.bindings[name].Inspect()))
	}
	out.WriteString("\n}")
	return out.String()
}

func (ns *Namespace) Attr(name string) (Value, bool) {
	v, ok := ns.bindings[name]
	return v, ok
}

func (ns *Namespace) SetAttr(name string, v Value) error {
	ns.bindings[name] = v
	return nil
}

func (ns *Namespace) Delete(name string) {
	delete(ns.bindings, name)
}

func (ns *Namespace) Names() []string {
	names := make([]string, 0, len(ns.bindings))
	for name := range ns.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ns *Namespace) Len() int { return len(ns.bindings) }

// Release drops all bindings. Used when a context's private store is torn
// down so capsule-like resources are unreachable before the context dies.
func (ns *Namespace) Release() {
	ns.bindings = make(map[string]Value)
}

// IsPrimitive reports whether v crosses context boundaries by copy rather
// than behind a proxy.
func IsPrimitive(v Value) bool {
	switch v.Type() {
	case NIL_OBJ, BOOLEAN_OBJ, NUMBER_OBJ, STRING_OBJ:
		return true
	}
	return false
}

// Identity returns a comparable cache key for v. Hashable values key by
// content; all other values in this model are pointer-shaped, so the
// interface itself is a stable identity.
func Identity(v Value) any {
	if h, ok := v.(Hashable); ok {
		return h.MapKey()
	}
	return v
}

// Equals compares primitives by content and everything else by identity,
// unwrapping proxies on either side first.
func Equals(a, b Value) bool {
	if p, ok := a.(Proxy); ok {
		a = p.ProxiedValue()
	}
	if p, ok := b.(Proxy); ok {
		b = p.ProxiedValue()
	}
	ha, aOK := a.(Hashable)
	hb, bOK := b.(Hashable)
	if aOK && bOK {
		return ha.MapKey() == hb.MapKey()
	}
	return a == b
}

// NativeBool converts a Go bool to the shared Boolean singletons.
func NativeBool(input bool) *Boolean {
	if input {
		return TRUE
	}
	return FALSE
}
