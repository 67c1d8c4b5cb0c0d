package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext(t *testing.T) {
	logger := zap.NewNop()
	ctx := WithContext(context.Background(), logger)

	retrieved := FromContext(ctx)
	assert.Equal(t, logger, retrieved)
}

func TestFromContext_NotFound(t *testing.T) {
	retrieved := FromContext(context.Background())
	require.NotNil(t, retrieved)
}

func TestWithRequestID(t *testing.T) {
	logger := zap.NewNop()
	ctx, enriched := WithRequestID(context.Background(), logger, "req-123")

	assert.NotNil(t, enriched)
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, enriched, FromContext(ctx))
}

func TestWithImportID(t *testing.T) {
	logger := zap.NewNop()
	ctx, enriched := WithImportID(context.Background(), logger, "import-456")

	assert.NotNil(t, enriched)
	assert.Equal(t, "import-456", GetImportID(ctx))
}

func TestGetRequestID_NotFound(t *testing.T) {
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestGetImportID_NotFound(t *testing.T) {
	assert.Equal(t, "", GetImportID(context.Background()))
}

func TestContextChaining(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	ctx, _ = WithRequestID(ctx, logger, "req-1")
	ctx, _ = WithImportID(ctx, FromContext(ctx), "import-1")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "import-1", GetImportID(ctx))
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), LoggerKey, "not-a-logger")
	retrieved := FromContext(ctx)
	require.NotNil(t, retrieved)
}

func TestL_ReturnsContextLogger(t *testing.T) {
	cl := L(context.Background())
	require.NotNil(t, cl)
}

func TestL_WithLoggerInContext(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	ctx := WithContext(context.Background(), logger)

	L(ctx).Info("hello")
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "hello", recorded.All()[0].Message)
}

func TestWithLogger_UsesProvidedLogger(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	WithLogger(context.Background(), logger).Info("direct")
	require.Equal(t, 1, recorded.Len())
}

func TestContextLogger_EnrichesWithContextFields(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-9")
	ctx = context.WithValue(ctx, ImportIDKey, "import-9")

	WithLogger(ctx, logger).Info("enriched")

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "import-9", fields["import_id"])
}

func TestContextLogger_EmptyContextFields(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	WithLogger(context.Background(), logger).Info("bare")

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.NotContains(t, fields, "request_id")
	assert.NotContains(t, fields, "import_id")
}

func TestContextLogger_With(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	WithLogger(context.Background(), logger).
		With(zap.String("table", "clients")).
		Info("chained")

	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "clients", recorded.All()[0].ContextMap()["table"])
}

func TestContextLogger_LogLevels(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	cl := WithLogger(context.Background(), logger)

	cl.Debug("d")
	cl.Info("i")
	cl.Warn("w")
	cl.Error("e")

	assert.Equal(t, 4, recorded.Len())
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := &ContextLogger{ctx: context.Background()}
	assert.NotPanics(t, func() {
		cl.Info("no logger attached")
	})
}

func TestContextLogger_Zap(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	z := WithLogger(context.Background(), logger).Zap()
	z.Info("via zap")
	assert.Equal(t, 1, recorded.Len())
}

func TestContextLogger_Sugar(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	WithLogger(context.Background(), logger).Sugar().Infow("sugared", "k", "v")
	assert.Equal(t, 1, recorded.Len())
}
