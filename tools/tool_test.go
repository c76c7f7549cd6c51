package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetArgs struct {
	Name string `json:"name"`
}

func greetTool() Definition {
	return Definition{
		Name:        "greet",
		Description: "greets someone",
		Schema:      SchemaFor(&greetArgs{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate OnUpdate) Result {
			var in greetArgs
			_ = json.Unmarshal(args, &in)
			if in.Name == "" {
				return ErrorResult(assert.AnError)
			}
			return Result{Text: "hello " + in.Name}
		},
	}
}

func TestNewRegistryCompilesSchemasUpFront(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(greetTool())
	require.NoError(t, err)

	def, ok := r.Get("greet")
	require.True(t, ok)
	assert.Equal(t, "greet", def.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestNewRegistryRejectsMalformedSchema(t *testing.T) {
	t.Parallel()
	_, err := NewRegistry(Definition{
		Name:   "broken",
		Schema: json.RawMessage(`{"type": `),
	})
	assert.Error(t, err)
}

func TestValidateAcceptsToolWithNoSchema(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(Definition{Name: "anything"})
	require.NoError(t, err)
	assert.NoError(t, r.Validate("anything", json.RawMessage(`{"whatever":1}`)))
}

func TestValidateRejectsUnknownTool(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Error(t, r.Validate("missing", json.RawMessage(`{}`)))
}

func TestValidateRejectsMalformedArgumentsJSON(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(greetTool())
	require.NoError(t, err)
	err = r.Validate("greet", json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestExecuteRunsToolOnSuccessfulValidation(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(greetTool())
	require.NoError(t, err)

	result := r.Execute(context.Background(), "greet", "call-1", json.RawMessage(`{"name":"ada"}`), nil)
	assert.False(t, result.IsError)
	assert.Equal(t, "hello ada", result.Text)
}

func TestExecuteReturnsErrorResultForUnknownTool(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry()
	require.NoError(t, err)
	result := r.Execute(context.Background(), "missing", "call-1", json.RawMessage(`{}`), nil)
	assert.True(t, result.IsError)
}

func TestExecuteNeverCallsBodyWhenValidationFails(t *testing.T) {
	t.Parallel()
	called := false
	r, err := NewRegistry(Definition{
		Name:   "strict",
		Schema: SchemaFor(&greetArgs{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate OnUpdate) Result {
			called = true
			return Result{}
		},
	})
	require.NoError(t, err)

	result := r.Execute(context.Background(), "strict", "call-1", json.RawMessage(`not json`), nil)
	assert.True(t, result.IsError)
	assert.False(t, called)
}

func TestDefsReturnsEveryRegisteredDefinition(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(greetTool(), Definition{Name: "other"})
	require.NoError(t, err)
	assert.Len(t, r.Defs(), 2)
}

type pathArgs struct {
	Path string `json:"path"`
}

// recordingWriteTool returns a "write" tool (one of the serialized tool
// names) whose body records the order in which overlapping calls entered
// and left its critical section, via the started/proceed channels the
// test controls.
func recordingWriteTool(started, proceed chan string) Definition {
	return Definition{
		Name:   "write",
		Schema: SchemaFor(&pathArgs{}),
		Execute: func(ctx context.Context, callID string, args json.RawMessage, onUpdate OnUpdate) Result {
			var in pathArgs
			_ = json.Unmarshal(args, &in)
			started <- in.Path
			<-proceed
			return Result{Text: "done"}
		},
	}
}

func TestExecuteSerializesEditWriteCallsToTheSamePath(t *testing.T) {
	t.Parallel()
	started := make(chan string)
	proceed := make(chan string)
	r, err := NewRegistry(recordingWriteTool(started, proceed))
	require.NoError(t, err)

	done := make(chan Result, 2)
	go func() {
		done <- r.Execute(context.Background(), "write", "call-1", json.RawMessage(`{"path":"a.txt"}`), nil)
	}()

	first := <-started
	assert.Equal(t, "a.txt", first)

	// A second call to the same path must not enter the critical section
	// until the first call's proceed signal is sent.
	go func() {
		done <- r.Execute(context.Background(), "write", "call-2", json.RawMessage(`{"path":"a.txt"}`), nil)
	}()

	select {
	case <-started:
		t.Fatal("second call to the same path entered the critical section before the first call finished")
	case <-time.After(50 * time.Millisecond):
	}

	proceed <- "a.txt"
	second := <-started
	assert.Equal(t, "a.txt", second)
	proceed <- "a.txt"

	require.Equal(t, "done", (<-done).Text)
	require.Equal(t, "done", (<-done).Text)
}

func TestExecuteDoesNotSerializeCallsToDifferentPaths(t *testing.T) {
	t.Parallel()
	started := make(chan string, 2)
	proceed := make(chan string, 2)
	r, err := NewRegistry(recordingWriteTool(started, proceed))
	require.NoError(t, err)

	go func() { r.Execute(context.Background(), "write", "call-1", json.RawMessage(`{"path":"a.txt"}`), nil) }()
	go func() { r.Execute(context.Background(), "write", "call-2", json.RawMessage(`{"path":"b.txt"}`), nil) }()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case p := <-started:
			seen[p] = true
		case <-time.After(time.Second):
			t.Fatal("calls to distinct paths should not block each other")
		}
	}
	assert.True(t, seen["a.txt"])
	assert.True(t, seen["b.txt"])
	proceed <- "a.txt"
	proceed <- "b.txt"
}
