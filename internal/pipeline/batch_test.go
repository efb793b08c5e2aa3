package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PetersonGuo/HTN25/internal/backend"
	"github.com/PetersonGuo/HTN25/internal/backend/backendtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	var constructed atomic.Int32
	factory := func(kind backend.Kind, _ backend.Options) (backend.Backend, error) {
		constructed.Add(1)
		return backendtest.New(`{"answer":"ok"}`), nil
	}
	p := New(mapTemplates{"qna": "q", "other": "o"}, WithBackendFactory(factory))

	inputs := make([]map[string]any, 0, 10)
	for i := 0; i < 10; i++ {
		input := map[string]any{"question": fmt.Sprint(i)}
		if i == 3 {
			input["template_name"] = "missing"
		}
		inputs = append(inputs, input)
	}

	items, err := p.RunBatch(context.Background(), inputs, testConfig(t, 2), 3)
	require.NoError(t, err)
	require.Len(t, items, len(inputs))

	for i, item := range items {
		assert.Equal(t, i, item.Index)
		if i == 3 {
			assert.ErrorIs(t, item.Err, ErrConfig)
			assert.Nil(t, item.Result)
			continue
		}
		require.NoError(t, item.Err)
		require.NotNil(t, item.Result)
		assert.True(t, item.Result.Validation.Valid)
	}
	assert.Equal(t, int32(9), constructed.Load())
}

func TestRunBatchRejectsInvalidConfig(t *testing.T) {
	p := New(mapTemplates{"qna": "q"})

	cfg := DefaultConfig()
	cfg.DefaultModel = "m"
	cfg.OutputSchema = json.RawMessage(`"string"`)

	items, err := p.RunBatch(context.Background(), []map[string]any{{}}, cfg, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaNotObject)
	assert.Nil(t, items)
}

func TestRunBatchCancelledContext(t *testing.T) {
	factory := func(kind backend.Kind, _ backend.Options) (backend.Backend, error) {
		return backendtest.New(`{"answer":"ok"}`), nil
	}
	p := New(mapTemplates{"qna": "q"}, WithBackendFactory(factory))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := p.RunBatch(ctx, []map[string]any{{}, {}}, testConfig(t, 1), 0)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Error(t, item.Err)
	}
}
