package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))
	assert.Equal(t, "[token:6 chars]", SanitizeToken("secret"))
	assert.NotContains(t, SanitizeToken("super-secret-token"), "secret")
}

func TestErrNilIsOmitted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)
	logger.Info("operation done", Err(nil))
	assert.NotContains(t, buf.String(), "error=")
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, false)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger = NewWithWriter(&buf, true)
	logger.Debug("visible", Method("discovery"))
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "method=discovery")
}
