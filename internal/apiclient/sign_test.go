package apiclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedEvaluator struct {
	results map[string]string
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, expr string, out any) error {
	for prefix, result := range e.results {
		if strings.HasPrefix(expr, prefix) {
			return json.Unmarshal([]byte(result), out)
		}
	}
	return json.Unmarshal([]byte(`""`), out)
}

func TestPageSignerAssemblesHeaderSet(t *testing.T) {
	page := &scriptedEvaluator{results: map[string]string{
		"window._webmsxyw":            `{"X-s": "sig-value", "X-t": 1700000000000}`,
		"window.localStorage.getItem": `"b1-fingerprint"`,
	}}
	cookies := &stubCookies{jar: map[string]string{"a1": "device-a1"}}

	signer := NewPageSigner(page, cookies)
	headers, err := signer.Sign(context.Background(), feedURI, feedRequest{SourceNoteID: "n1"})
	require.NoError(t, err)

	assert.Equal(t, "sig-value", headers["X-S"])
	assert.Equal(t, "1700000000000", headers["X-T"])
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), headers["X-B3-Traceid"])

	blob, err := base64.StdEncoding.DecodeString(headers["X-S-Common"])
	require.NoError(t, err)

	var common commonPayload
	require.NoError(t, json.Unmarshal(blob, &common))
	assert.Equal(t, 3, common.S0)
	assert.Equal(t, "device-a1", common.X5)
	assert.Equal(t, "1700000000000", common.X6)
	assert.Equal(t, "sig-value", common.X7)
	assert.Equal(t, "b1-fingerprint", common.X8)
	assert.Equal(t, "xhs-pc-web", common.X3)
}

func TestTraceIDFormat(t *testing.T) {
	seen := map[string]bool{}
	for range 8 {
		id := traceID()
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1, "ids should vary across calls")
}
