package output

import (
	"bytes"
	"encoding/json"
	"testing"
)

func BenchmarkNormalizeData(b *testing.B) {
	b.Run("json_raw_message_array", func(b *testing.B) {
		raw := json.RawMessage(`[{"id":1,"name":"A"},{"id":2,"name":"B"},{"id":3,"name":"C"}]`)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			normalizeData(raw)
		}
	})

	b.Run("already_normalized_map", func(b *testing.B) {
		data := map[string]any{"id": 123.0, "name": "Test"}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			normalizeData(data)
		}
	})
}

func BenchmarkWriterOK(b *testing.B) {
	raw := json.RawMessage(`{"id":"b-1","name":"Studio","slots":[1,2,3]}`)

	b.Run("json", func(b *testing.B) {
		var buf bytes.Buffer
		w := New(Options{Format: FormatJSON, Writer: &buf})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			buf.Reset()
			_ = w.OK(raw)
		}
	})

	b.Run("jq", func(b *testing.B) {
		var buf bytes.Buffer
		w := New(Options{Format: FormatJSON, Writer: &buf, JQ: ".slots | length"})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			buf.Reset()
			_ = w.OK(raw)
		}
	})
}
