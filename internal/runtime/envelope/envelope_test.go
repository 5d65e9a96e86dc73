package envelope

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type showMessage struct {
	Message string `json:"message"`
	IsError bool   `json:"isError"`
}

func TestEncodeDefaultKeys(t *testing.T) {
	raw, err := Codec{}.Encode("showMessage", showMessage{Message: "copied"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"showMessage","data":{"message":"copied","isError":false}}`, string(raw))
}

func TestEncodeOmitsNilData(t *testing.T) {
	raw, err := Codec{}.Encode("ready", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ready"}`, string(raw))
}

func TestCustomKeysRoundTrip(t *testing.T) {
	codec := NewCodec("kind", "payload")
	raw, err := codec.Encode("alert", "hello")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"alert","payload":"hello"}`, string(raw))

	env := codec.Decode(raw)
	assert.Equal(t, MessageType("alert"), env.Type)
	assert.JSONEq(t, `"hello"`, string(env.Data))

	assert.Equal(t, Envelope{}, Codec{}.Decode(raw), "default keys do not see custom ones")
}

func TestNewCodecDefaults(t *testing.T) {
	codec := NewCodec("", "")
	assert.Equal(t, "type", codec.TypeKey())
	assert.Equal(t, "data", codec.DataKey())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType MessageType
		wantData string
	}{
		{"string type", `{"type":"ready"}`, "ready", ""},
		{"numeric type", `{"type":3,"data":1}`, "3", "1"},
		{"float type", `{"type":2.50}`, "2.5", ""},
		{"null data is absent", `{"type":"x","data":null}`, "x", ""},
		{"bool type is absent", `{"type":true,"data":{}}`, "", "{}"},
		{"empty input", ``, "", ""},
		{"malformed", `{"type":`, "", ""},
		{"not an object", `["type","x"]`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Codec{}.Decode([]byte(tt.raw))
			assert.Equal(t, tt.wantType, env.Type)
			if tt.wantData == "" {
				assert.False(t, env.HasData())
			} else {
				assert.JSONEq(t, tt.wantData, string(env.Data))
			}
		})
	}
}

func TestMarshalData(t *testing.T) {
	raw, err := MarshalData(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))

	_, err = MarshalData(json.RawMessage(`{`))
	assert.Error(t, err)

	raw, err = MarshalData(json.RawMessage(nil))
	require.NoError(t, err)
	assert.Nil(t, raw)

	raw, err = MarshalData(wrapperspb.String("svg"))
	require.NoError(t, err)
	assert.JSONEq(t, `"svg"`, string(raw))
}

func TestDecodeData(t *testing.T) {
	env := Codec{}.Decode([]byte(`{"type":"showMessage","data":{"message":"boom","isError":true}}`))

	got, err := DecodeData[showMessage](env)
	require.NoError(t, err)
	assert.Equal(t, showMessage{Message: "boom", IsError: true}, got)

	_, err = DecodeData[showMessage](Envelope{Type: "ready"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDecodeProto(t *testing.T) {
	payload, err := structpb.NewStruct(map[string]any{"fileName": "main.go", "startLine": 3})
	require.NoError(t, err)
	raw, err := Codec{}.Encode("updateCode", payload)
	require.NoError(t, err)

	var got structpb.Struct
	require.NoError(t, DecodeProto(Codec{}.Decode(raw), &got))
	assert.Equal(t, "main.go", got.Fields["fileName"].GetStringValue())
	assert.Equal(t, float64(3), got.Fields["startLine"].GetNumberValue())

	assert.ErrorIs(t, DecodeProto(Envelope{}, &got), ErrNoData)
}
