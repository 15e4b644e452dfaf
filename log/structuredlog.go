package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// StructuredLog is one JSON line describing a finished unit of work,
// such as a transaction summary printed by evmrun.
type StructuredLog struct {
	Time     time.Time       `json:"time"`
	Sender   string          `json:"sender_id"`
	MsgType  string          `json:"msg_type"`
	MsgJSON  json.RawMessage `json:"json_encoded"`
	Metadata *string         `json:"metadata,omitempty"`
	Elapsed  uint32          `json:"elapsed,omitempty"`
}

var fieldOrder = []string{"time", "sender_id", "msg_type", "json_encoded", "metadata", "elapsed"}

// Custom JSON marshaling to preserve field order and omit zero/empty values.
func (l StructuredLog) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	writeField := func(key string, val []byte) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(buf, `"%s":`, key)
		buf.Write(val)
	}
	for _, f := range fieldOrder {
		switch f {
		case "time":
			b, _ := json.Marshal(l.Time)
			writeField(f, b)
		case "sender_id":
			b, _ := json.Marshal(l.Sender)
			writeField(f, b)
		case "msg_type":
			b, _ := json.Marshal(l.MsgType)
			writeField(f, b)
		case "json_encoded":
			if len(l.MsgJSON) == 0 {
				writeField(f, []byte("null"))
			} else {
				writeField(f, l.MsgJSON)
			}
		case "metadata":
			if l.Metadata != nil {
				b, _ := json.Marshal(*l.Metadata)
				writeField(f, b)
			}
		case "elapsed":
			if l.Elapsed != 0 {
				b, _ := json.Marshal(l.Elapsed)
				writeField(f, b)
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Structured writes msg to w as a single StructuredLog line. Recognised kv
// keys are "metadata", "elapsed" (milliseconds) and "time".
func Structured(w io.Writer, msgType string, senderID string, msg interface{}, kv ...interface{}) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("structured log: marshal %s: %w", msgType, err)
	}

	entry := StructuredLog{
		Sender:  senderID,
		Time:    time.Now().UTC(),
		MsgType: msgType,
		MsgJSON: msgJSON,
	}

	kvMap := toMap(kv...)
	if userMeta, ok := kvMap["metadata"]; ok && userMeta != nil {
		meta := strings.TrimSpace(fmt.Sprint(userMeta))
		entry.Metadata = &meta
	}
	if v, ok := kvMap["elapsed"]; ok {
		entry.Elapsed = parseUint32(v)
	}
	if v, ok := kvMap["time"]; ok {
		if t, ok := v.(time.Time); ok {
			entry.Time = t
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = w.Write(line)
	return err
}

func toMap(kv ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}

func parseUint32(v interface{}) uint32 {
	switch t := v.(type) {
	case int:
		return uint32(t)
	case int64:
		return uint32(t)
	case float64:
		return uint32(t)
	case uint32:
		return t
	case uint64:
		return uint32(t)
	case time.Duration:
		return uint32(t.Milliseconds())
	case string:
		if n, err := strconv.ParseUint(t, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return 0
}
