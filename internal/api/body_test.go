package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBodyJSON(t *testing.T) {
	data, ct, err := encodeBody(map[string]string{"name": "Studio"})
	require.NoError(t, err)
	assert.Equal(t, contentTypeJSON, ct)
	assert.JSONEq(t, `{"name":"Studio"}`, string(data))
}

func TestEncodeBodyRawJSON(t *testing.T) {
	data, ct, err := encodeBody(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, contentTypeJSON, ct)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestEncodeBodyBinary(t *testing.T) {
	data, ct, err := encodeBody([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, contentTypeBinary, ct)
	assert.Len(t, data, 4)

	data, ct, err = encodeBody(strings.NewReader("raw bytes"))
	require.NoError(t, err)
	assert.Equal(t, contentTypeBinary, ct)
	assert.Equal(t, "raw bytes", string(data))
}

func TestEncodeBodyNil(t *testing.T) {
	data, ct, err := encodeBody(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Empty(t, ct)
}

func TestEncodeBodyUnencodable(t *testing.T) {
	_, _, err := encodeBody(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestEncodeBodyUpload(t *testing.T) {
	u := &Upload{
		FileName:    "frame.png",
		ContentType: "image/png",
		Content:     bytes.NewReader([]byte("pngdata")),
		Fields:      map[string]string{"booth_id": "b-1"},
	}

	data, ct, err := encodeBody(u)
	require.NoError(t, err)

	mt, params, err := mime.ParseMediaType(ct)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mt)

	mr := multipart.NewReader(bytes.NewReader(data), params["boundary"])
	form, err := mr.ReadForm(1 << 20)
	require.NoError(t, err)

	assert.Equal(t, []string{"b-1"}, form.Value["booth_id"])
	require.Len(t, form.File["file"], 1)
	fh := form.File["file"][0]
	assert.Equal(t, "frame.png", fh.Filename)
	assert.Equal(t, "image/png", fh.Header.Get("Content-Type"))

	f, err := fh.Open()
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "pngdata", string(content))
}
