// Package envelope frames payloads for the codeshot channel. An envelope is a
// JSON object with two fields, the message type and the payload, whose key
// names are chosen once per Codec.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/codeshot/internal/runtime/jsoncodec"
)

// Default key names.
const (
	DefaultTypeKey = "type"
	DefaultDataKey = "data"
)

// ErrNoData is returned by the typed decoders when the envelope carries no payload.
var ErrNoData = errors.New("codeshot: envelope has no data")

// MessageType discriminates envelopes. Numeric discriminants on the wire are
// represented by their decimal literal.
type MessageType string

// Envelope is one decoded message. A nil Data means the payload was absent
// or null.
type Envelope struct {
	Type MessageType
	Data json.RawMessage
}

// HasData reports whether a payload is present.
func (e Envelope) HasData() bool {
	return e.Data != nil
}

// Codec maps (type, payload) to and from the wire. The zero Codec uses the
// default key names.
type Codec struct {
	typeKey string
	dataKey string
}

// NewCodec returns a codec using the given key names; empty names fall back
// to the defaults.
func NewCodec(typeKey, dataKey string) Codec {
	if typeKey == "" {
		typeKey = DefaultTypeKey
	}
	if dataKey == "" {
		dataKey = DefaultDataKey
	}
	return Codec{typeKey: typeKey, dataKey: dataKey}
}

func (c Codec) TypeKey() string {
	if c.typeKey == "" {
		return DefaultTypeKey
	}
	return c.typeKey
}

func (c Codec) DataKey() string {
	if c.dataKey == "" {
		return DefaultDataKey
	}
	return c.dataKey
}

// Encode builds {typeKey: t, dataKey: data}. The data key is omitted when
// data is nil.
func (c Codec) Encode(t MessageType, data any) ([]byte, error) {
	raw, err := MarshalData(data)
	if err != nil {
		return nil, err
	}
	return c.EncodeRaw(t, raw)
}

// EncodeRaw is Encode for a payload that is already JSON.
func (c Codec) EncodeRaw(t MessageType, data json.RawMessage) ([]byte, error) {
	typ, err := jsoncodec.Marshal(string(t))
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{c.TypeKey(): typ}
	if data != nil {
		fields[c.DataKey()] = data
	}
	return jsoncodec.Marshal(fields)
}

// Decode reads an envelope. Anything that is not a JSON object decodes to
// the zero Envelope; a type that is neither a string nor a number is absent.
func (c Codec) Decode(raw []byte) Envelope {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || jsoncodec.Unmarshal(raw, &fields) != nil {
		return Envelope{}
	}
	return Envelope{
		Type: decodeType(fields[c.TypeKey()]),
		Data: decodeData(fields[c.DataKey()]),
	}
}

func decodeType(raw json.RawMessage) MessageType {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if jsoncodec.Unmarshal(raw, &s) != nil {
			return ""
		}
		return MessageType(s)
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return ""
	}
	return MessageType(strconv.FormatFloat(f, 'f', -1, 64))
}

func decodeData(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// MarshalData converts a payload to JSON. json.RawMessage passes through,
// proto messages go through protojson, nil stays nil.
func MarshalData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if v == nil {
			return nil, nil
		}
		if !jsoncodec.Valid(v) {
			return nil, errors.New("codeshot: payload is not valid JSON")
		}
		return v, nil
	case proto.Message:
		return protojson.Marshal(v)
	default:
		return jsoncodec.Marshal(v)
	}
}

// DecodeData unmarshals the payload into T.
func DecodeData[T any](e Envelope) (T, error) {
	var out T
	if !e.HasData() {
		return out, ErrNoData
	}
	err := jsoncodec.Unmarshal(e.Data, &out)
	return out, err
}

// DecodeProto unmarshals the payload into msg using protojson.
func DecodeProto(e Envelope, msg proto.Message) error {
	if !e.HasData() {
		return ErrNoData
	}
	return protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(e.Data, msg)
}
