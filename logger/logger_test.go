package logger_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/logger"
)

func capture(opts ...logger.OptionFunc) *bytes.Buffer {
	buf := new(bytes.Buffer)
	logger.InitZap(append([]logger.OptionFunc{logger.OptionSetWriter(buf)}, opts...)...)
	return buf
}

func TestLog(t *testing.T) {
	buf := capture()

	logger.Log(zapcore.InfoLevel, "registration created", "RegistrationService", "register")

	assert.Contains(t, buf.String(), `"message":"registration created"`)
	assert.Contains(t, buf.String(), `"context":"RegistrationService"`)
	assert.Contains(t, buf.String(), `"scope":"register"`)
	assert.Contains(t, buf.String(), `"level":"INFO"`)
}

func TestLogWithField(t *testing.T) {
	buf := capture()

	logger.LogWithField(zapcore.WarnLevel, map[string]any{
		"message":  "notify failed",
		"event_id": "abc",
	})

	assert.Contains(t, buf.String(), "notify failed")
	assert.Contains(t, buf.String(), `"event_id":"abc"`)
}

func TestLogHelpers(t *testing.T) {
	buf := capture(logger.OptionSetService("volunteer-events"))

	logger.LogIf("formatted info: %d", 3)
	logger.LogE("store unavailable")

	assert.Contains(t, buf.String(), "formatted info: 3")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"service":"volunteer-events"`)
}

func TestLevelFilter(t *testing.T) {
	buf := capture(logger.OptionSetLevel("warn"))

	logger.LogI("hidden")
	logger.LogW("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
