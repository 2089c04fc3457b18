package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeBinary = "application/octet-stream"
)

// Upload is a multipart/form-data request body.
type Upload struct {
	// FieldName is the form field carrying the file. Defaults to "file".
	FieldName   string
	FileName    string
	ContentType string
	Content     io.Reader

	// Fields are extra form values sent alongside the file.
	Fields map[string]string
}

// encodeBody buffers body once so the request can be replayed after a
// refresh. The returned content type is empty when none is implied.
//
// Multipart and binary bodies are sent as-is; everything else is JSON.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Upload:
		return b.encode()
	case json.RawMessage:
		return b, contentTypeJSON, nil
	case []byte:
		return b, contentTypeBinary, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return nil, "", fmt.Errorf("reading request body: %w", err)
		}
		return data, contentTypeBinary, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request body: %w", err)
		}
		return data, contentTypeJSON, nil
	}
}

func (u *Upload) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range u.Fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if u.Content != nil {
		field := u.FieldName
		if field == "" {
			field = "file"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", multipart.FileContentDisposition(field, u.FileName))
		ct := u.ContentType
		if ct == "" {
			ct = contentTypeBinary
		}
		h.Set("Content-Type", ct)

		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, u.Content); err != nil {
			return nil, "", fmt.Errorf("reading upload: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
