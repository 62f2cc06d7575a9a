package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Arg is one named argument of a command. Order of arguments is preserved on the wire.
type Arg struct {
	Key   string
	Value any
}

// String builds a string argument
func String(key, value string) Arg { return Arg{Key: key, Value: value} }

// Int builds an integer argument
func Int(key string, value int64) Arg { return Arg{Key: key, Value: value} }

// Float builds a floating point argument
func Float(key string, value float64) Arg { return Arg{Key: key, Value: value} }

// Bool builds a boolean argument
func Bool(key string, value bool) Arg { return Arg{Key: key, Value: value} }

// Decimal builds a numeric argument that is sent as a bare JSON number
func Decimal(key string, value decimal.Decimal) Arg {
	return Arg{Key: key, Value: json.Number(value.String())}
}

// Strings builds a string list argument
func Strings(key string, values []string) Arg {
	return Arg{Key: key, Value: slices.Clone(nonNil(values))}
}

// Ints builds an integer list argument
func Ints(key string, values []int64) Arg {
	return Arg{Key: key, Value: slices.Clone(nonNil(values))}
}

// Nested builds an object argument such as tradeTransInfo
func Nested(key string, args ...Arg) Arg {
	return Arg{Key: key, Value: Object(slices.Clone(args))}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Object is an ordered JSON object
type Object []Arg

// Get returns the value stored under key
func (o Object) Get(key string) (any, bool) {
	for _, a := range o {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := o.writeFields(&buf, false); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o Object) writeFields(buf *bytes.Buffer, leadingComma bool) error {
	for i, a := range o {
		if i > 0 || leadingComma {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.Key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(a.Value)
		if err != nil {
			return fmt.Errorf("argument %q: %w", a.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	return nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('{') {
		return fmt.Errorf("expected object, got %v", tok)
	}
	obj, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*o = obj
	return nil
}

func decodeObject(dec *json.Decoder) (Object, error) {
	obj := Object{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		obj = append(obj, Arg{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		return decodeObject(dec)
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

// Command is an immutable request for the command channel
type Command struct {
	name string
	args Object
}

// NewCommand builds a command; the argument slice is copied
func NewCommand(name string, args ...Arg) Command {
	return Command{name: name, args: slices.Clone(Object(args))}
}

func (c Command) Name() string { return c.name }

// Args returns a copy of the ordered argument bag
func (c Command) Args() Object { return slices.Clone(c.args) }

// Arg returns the value of one argument
func (c Command) Arg(key string) (any, bool) { return c.args.Get(key) }

func (c Command) MarshalJSON() ([]byte, error) {
	name, err := json.Marshal(c.name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"command":`)
	buf.Write(name)
	if len(c.args) > 0 {
		args, err := c.args.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"arguments":`)
		buf.Write(args)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var obj Object
	if err := obj.UnmarshalJSON(data); err != nil {
		return err
	}
	raw, ok := obj.Get("command")
	if !ok {
		return fmt.Errorf("command name missing")
	}
	name, ok := raw.(string)
	if !ok {
		return fmt.Errorf("command name is %T, not string", raw)
	}
	c.name = name
	c.args = nil
	if rawArgs, ok := obj.Get("arguments"); ok {
		args, ok := rawArgs.(Object)
		if !ok {
			return fmt.Errorf("arguments is %T, not object", rawArgs)
		}
		c.args = args
	}
	return nil
}

// StreamCommand is a subscribe, unsubscribe or ping message for the event channel
type StreamCommand struct {
	name   string
	token  string
	fields Object
}

// NewStreamCommand builds a stream command bound to a stream session token
func NewStreamCommand(name, token string, fields ...Arg) StreamCommand {
	return StreamCommand{name: name, token: token, fields: slices.Clone(Object(fields))}
}

func (c StreamCommand) Name() string { return c.name }

func (c StreamCommand) Token() string { return c.token }

// Field returns the value of one topic-specific field
func (c StreamCommand) Field(key string) (any, bool) { return c.fields.Get(key) }

func (c StreamCommand) MarshalJSON() ([]byte, error) {
	name, err := json.Marshal(c.name)
	if err != nil {
		return nil, err
	}
	token, err := json.Marshal(c.token)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"command":`)
	buf.Write(name)
	buf.WriteString(`,"streamSessionId":`)
	buf.Write(token)
	if err := c.fields.writeFields(&buf, true); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Reply is the response document to exactly one Command
type Reply struct {
	Status          bool            `json:"status"`
	ReturnData      json.RawMessage `json:"returnData,omitempty"`
	ErrorCode       string          `json:"errorCode,omitempty"`
	ErrorDescr      string          `json:"errorDescr,omitempty"`
	StreamSessionID string          `json:"streamSessionId,omitempty"`
}

// Decode unmarshals returnData into v
func (r Reply) Decode(v any) error {
	if len(r.ReturnData) == 0 {
		return fmt.Errorf("reply carries no returnData")
	}
	return json.Unmarshal(r.ReturnData, v)
}

// Err converts a failed reply into a *ReplyError, nil when status is true
func (r Reply) Err() error {
	if r.Status {
		return nil
	}
	return &ReplyError{Code: r.ErrorCode, Descr: r.ErrorDescr}
}

// ReplyError is a failure reported by the platform inside a well-formed reply
type ReplyError struct {
	Code  string
	Descr string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("xapi error %s: %s", e.Code, e.Descr)
}

// PushEvent is one unsolicited message from the event channel
type PushEvent struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v
func (e PushEvent) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
