package logging

import (
	"context"
	"testing"
	"time"

	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)

	sampled := newSampledCore(core, SamplingConfig{Enabled: false})
	assert.Equal(t, core, sampled)
}

func TestNewSampledCore(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	cfg := SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    5,
		Thereafter: 0,
	}
	logger := &Logger{zap: zap.New(newSampledCore(core, cfg)), config: NewDefaultConfig()}
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		logger.Error(ctx, "persist failed")
		logger.Info(ctx, "message received")
	}

	assert.Len(t, observed.FilterMessage("persist failed").All(), 50, "errors are never sampled")
	assert.Len(t, observed.FilterMessage("message received").All(), 5)
}
