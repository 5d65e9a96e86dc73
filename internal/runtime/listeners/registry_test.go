package listeners

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/codeshot/internal/runtime/envelope"
)

type recorder struct {
	mu       sync.Mutex
	results  []string
	failures []error
}

func (r *recorder) success(data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, string(data))
}

func (r *recorder) failure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func TestDispatchSuccessOnce(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Register("updateCode", rec.success, rec.failure)

	ran := reg.Dispatch("updateCode", json.RawMessage(`{"code":"x"}`), nil)

	assert.True(t, ran)
	assert.Equal(t, []string{`{"code":"x"}`}, rec.results)
	assert.Empty(t, rec.failures)
}

func TestDispatchFailure(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Register("getData", rec.success, rec.failure)
	boom := errors.New("boom")

	assert.True(t, reg.Dispatch("getData", nil, boom))
	assert.Equal(t, []error{boom}, rec.failures)
	assert.Empty(t, rec.results)
}

func TestDispatchFailureWithoutHandler(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Register("getData", rec.success, nil)

	assert.False(t, reg.Dispatch("getData", nil, errors.New("boom")))
	assert.Empty(t, rec.results)
}

func TestDispatchNoOps(t *testing.T) {
	reg := New()
	rec := &recorder{}
	reg.Register("ready", rec.success, rec.failure)

	assert.False(t, reg.Dispatch("", json.RawMessage(`1`), nil), "empty type")
	assert.False(t, reg.Dispatch("unknown", json.RawMessage(`1`), nil), "no entry")
	assert.False(t, reg.Dispatch("ready", nil, nil), "neither result nor error")
	assert.Empty(t, rec.results)
	assert.Empty(t, rec.failures)
}

func TestRegisterReplaces(t *testing.T) {
	reg := New()
	a, b := &recorder{}, &recorder{}
	reg.Register("alert", a.success, nil)
	reg.Register("alert", b.success, nil)

	reg.Dispatch("alert", json.RawMessage(`"hi"`), nil)

	assert.Empty(t, a.results)
	assert.Equal(t, []string{`"hi"`}, b.results)
	assert.Equal(t, 1, reg.Count())
}

func TestUnregister(t *testing.T) {
	reg := New()
	reg.Register("alert", func(json.RawMessage) {}, nil)

	assert.True(t, reg.Unregister("alert"))
	assert.False(t, reg.Unregister("alert"))
	assert.False(t, reg.Has("alert"))
}

func TestDisposerRemovesOnlyItsOwnEntry(t *testing.T) {
	reg := New()
	disposeA := reg.Register("alert", func(json.RawMessage) {}, nil)
	disposeB := reg.Register("alert", func(json.RawMessage) {}, nil)

	assert.False(t, disposeA(), "A was replaced by B")
	assert.True(t, reg.Has("alert"))

	assert.True(t, disposeB())
	assert.False(t, disposeB(), "idempotent")
	assert.False(t, reg.Has("alert"))
}

func TestTypesSortedAndCount(t *testing.T) {
	reg := New()
	for _, typ := range []envelope.MessageType{"showMessage", "alert", "copyImage"} {
		reg.Register(typ, func(json.RawMessage) {}, nil)
	}

	assert.Equal(t, []envelope.MessageType{"alert", "copyImage", "showMessage"}, reg.Types())
	assert.Equal(t, 3, reg.Count())

	reg.Clear()
	assert.Zero(t, reg.Count())
	assert.Empty(t, reg.Types())
}

func TestHandlerMayRegisterDuringDispatch(t *testing.T) {
	reg := New()
	done := false
	reg.Register("ready", func(json.RawMessage) {
		reg.Register("updateCode", func(json.RawMessage) { done = true }, nil)
	}, nil)

	reg.Dispatch("ready", json.RawMessage(`{}`), nil)
	reg.Dispatch("updateCode", json.RawMessage(`{}`), nil)

	assert.True(t, done)
}

func TestHandlerPanicsPropagate(t *testing.T) {
	reg := New()
	reg.Register("boom", func(json.RawMessage) { panic("handler") }, nil)

	assert.PanicsWithValue(t, "handler", func() {
		reg.Dispatch("boom", json.RawMessage(`1`), nil)
	})
	assert.True(t, reg.Has("boom"), "registry stays usable")
}

func TestConcurrentAccess(t *testing.T) {
	reg := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ := envelope.MessageType(fmt.Sprintf("t%d", i%3))
			for j := 0; j < 100; j++ {
				dispose := reg.Register(typ, func(json.RawMessage) {}, nil)
				reg.Dispatch(typ, json.RawMessage(`1`), nil)
				reg.Types()
				dispose()
			}
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, reg.Count(), 3)
}
