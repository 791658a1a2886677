package parser

import (
	"bytes"
	"encoding/json"
)

// Field keys a Block can carry.
const (
	KeyLabel         = "label"
	KeyNewBackground = "newBackground"
	KeyShow          = "show"
	KeyHide          = "hide"
	KeyWith          = "with"
	KeyChar          = "char"
	KeyContent       = "content"
	KeyPythonCode    = "python_code"
	KeyMenu          = "menu"
	KeyImageDef      = "image_def"
	KeyTransition    = "transition"
	KeyVariable      = "variable"
	KeyJump          = "jump"
	KeyCall          = "call"
	KeyReturn        = "return"
)

// MenuOption is one selectable entry of a menu block. Actions are the raw
// lines that followed the option.
type MenuOption struct {
	Option  string   `json:"option"`
	Actions []string `json:"actions"`
}

// ImageDef is an `image <name> = <value>` statement.
type ImageDef struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Transition is a named visual transition with its duration argument.
type Transition struct {
	Type     string `json:"type"`
	Duration string `json:"duration"`
}

// Variable is a `$ name = value` assignment.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Field is a single key/value pair of a Block.
type Field struct {
	Key   string
	Value any
}

// Block is one narrative step: an ordered set of fields. Setting a key that
// is already present replaces its value and keeps its position.
type Block struct {
	fields []Field
}

// Set stores v under key.
func (b *Block) Set(key string, v any) {
	for i := range b.fields {
		if b.fields[i].Key == key {
			b.fields[i].Value = v
			return
		}
	}
	b.fields = append(b.fields, Field{Key: key, Value: v})
}

// Get returns the value stored under key.
func (b *Block) Get(key string) (any, bool) {
	for _, f := range b.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Text returns the string value stored under key, or "" if the key is
// absent or holds another type.
func (b *Block) Text(key string) string {
	v, _ := b.Get(key)
	s, _ := v.(string)
	return s
}

// Has reports whether key is set.
func (b *Block) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Len returns the number of fields.
func (b *Block) Len() int { return len(b.fields) }

// IsEmpty reports whether no field has been set.
func (b *Block) IsEmpty() bool { return len(b.fields) == 0 }

// Keys returns the field keys in insertion order.
func (b *Block) Keys() []string {
	keys := make([]string, len(b.fields))
	for i, f := range b.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the fields in insertion order.
func (b *Block) Fields() []Field {
	out := make([]Field, len(b.fields))
	copy(out, b.fields)
	return out
}

// Menu returns the menu options of the block, or nil.
func (b *Block) Menu() []MenuOption {
	v, _ := b.Get(KeyMenu)
	m, _ := v.([]MenuOption)
	return m
}

func (b *Block) addMenuOption(text string) {
	b.Set(KeyMenu, append(b.Menu(), MenuOption{Option: text, Actions: []string{}}))
}

// addMenuAction appends line to the last menu option. It reports false when
// no option exists yet.
func (b *Block) addMenuAction(line string) bool {
	menu := b.Menu()
	if len(menu) == 0 {
		return false
	}
	last := &menu[len(menu)-1]
	last.Actions = append(last.Actions, line)
	return true
}

func (b *Block) appendCode(line string) {
	b.Set(KeyPythonCode, b.Text(KeyPythonCode)+line+"\n")
}

// MarshalJSON encodes the block as an object with keys in insertion order.
func (b Block) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range b.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalRaw(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := marshalRaw(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the block as compact JSON.
func (b Block) String() string {
	data, err := b.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Document is the ordered sequence of finalized, non-empty blocks.
type Document []Block

// MarshalJSON encodes the document as an array; a nil document is "[]".
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := b.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalRaw encodes v without HTML escaping so script text such as
// "<b>bold</b>" survives unchanged.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
