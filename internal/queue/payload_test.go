package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadDecodesBase64AndBufferPages(t *testing.T) {
	raw := `{
		"jobId": "job-1",
		"targetLanguage": "id",
		"bestEffort": true,
		"pages": ["aGVsbG8=", {"type": "Buffer", "data": [1, 2, 255]}]
	}`

	var p JobPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, "job-1", p.JobID)
	assert.Equal(t, "id", p.TargetLanguage)
	assert.True(t, p.BestEffort)
	require.Len(t, p.Pages, 2)
	assert.Equal(t, []byte("hello"), p.Pages[0])
	assert.Equal(t, []byte{1, 2, 255}, p.Pages[1])
}

func TestPayloadAcceptsLegacyFileBuffer(t *testing.T) {
	var p JobPayload
	require.NoError(t, json.Unmarshal([]byte(`{"jobId":"j","fileBuffer":"aGk="}`), &p))
	require.Len(t, p.Pages, 1)
	assert.Equal(t, []byte("hi"), p.Pages[0])
}

func TestPayloadRejectsMalformedPages(t *testing.T) {
	cases := map[string]string{
		"number":       `{"jobId":"j","pages":[42]}`,
		"bad base64":   `{"jobId":"j","pages":["***"]}`,
		"wrong type":   `{"jobId":"j","pages":[{"type":"Blob","data":[1]}]}`,
		"missing data": `{"jobId":"j","pages":[{"type":"Buffer"}]}`,
		"out of range": `{"jobId":"j","pages":[{"type":"Buffer","data":[256]}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var p JobPayload
			assert.Error(t, json.Unmarshal([]byte(raw), &p))
		})
	}
}

func TestPayloadMarshalsPagesAsBase64(t *testing.T) {
	in := JobPayload{JobID: "job-2", Pages: [][]byte{[]byte("hello")}, Metadata: map[string]interface{}{"k": "v"}}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pages":["aGVsbG8="]`)

	var out JobPayload
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Pages, out.Pages)
	assert.Equal(t, "v", out.Metadata["k"])
}

func TestPayloadValidate(t *testing.T) {
	assert.Error(t, (&JobPayload{Pages: [][]byte{{1}}}).Validate())
	assert.Error(t, (&JobPayload{JobID: "j"}).Validate())
	assert.NoError(t, (&JobPayload{JobID: "j", FileURL: "http://example.com/a.png"}).Validate())
}

func TestPayloadToRequest(t *testing.T) {
	p := &JobPayload{JobID: "j", UserID: "u", Filename: "scan.png", TargetLanguage: "fr", Pages: [][]byte{{1}}, BestEffort: true}
	req := p.ToRequest()
	assert.Equal(t, "j", req.JobID)
	assert.Equal(t, "u", req.UserID)
	assert.Equal(t, "scan.png", req.Filename)
	assert.Equal(t, "fr", req.TargetLanguage)
	assert.True(t, req.BestEffort)
	assert.Len(t, req.Pages, 1)
}
