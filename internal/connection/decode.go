package connection

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rickgao/subscription-dashboard/internal/model"
)

// requiredCounts are the analytics keys every push envelope must carry.
var requiredCounts = []string{
	"total_subscriptions",
	"active_subscriptions",
	"trial_subscriptions",
	"cancelled_subscriptions",
}

type envelope struct {
	Analytics json.RawMessage `json:"analytics"`
	Recent    json.RawMessage `json:"recent_subscriptions"`
	Timestamp *string         `json:"timestamp"`
}

// DecodeRealtime parses a push payload. Any failure is a *ProtocolError.
func DecodeRealtime(data []byte) (model.RealtimeData, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.RealtimeData{}, &ProtocolError{Reason: "invalid json", Err: err}
	}

	if isNull(env.Analytics) {
		return model.RealtimeData{}, &ProtocolError{Reason: "missing analytics"}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Analytics, &fields); err != nil {
		return model.RealtimeData{}, &ProtocolError{Reason: "analytics is not an object", Err: err}
	}
	var missing []string
	for _, key := range requiredCounts {
		if isNull(fields[key]) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return model.RealtimeData{}, &ProtocolError{Reason: "analytics missing " + strings.Join(missing, ", ")}
	}

	var out model.RealtimeData
	if err := json.Unmarshal(env.Analytics, &out.Analytics); err != nil {
		return model.RealtimeData{}, &ProtocolError{Reason: "invalid analytics", Err: err}
	}

	if env.Timestamp == nil || *env.Timestamp == "" {
		return model.RealtimeData{}, &ProtocolError{Reason: "missing timestamp"}
	}
	out.Timestamp = *env.Timestamp

	if !isNull(env.Recent) {
		if err := json.Unmarshal(env.Recent, &out.RecentSubscriptions); err != nil {
			return model.RealtimeData{}, &ProtocolError{Reason: "invalid recent_subscriptions", Err: err}
		}
	}

	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
