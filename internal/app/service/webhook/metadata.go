package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Metadata is the merchant-supplied bag echoed back by the provider. It may
// arrive as an object or as a JSON-encoded string; anything unparseable
// becomes empty metadata.
type Metadata struct {
	SubscriptionID string
	UserID         string
	PlanID         string
	Extra          map[string]any
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	*m = Metadata{}
	raw := bytes.TrimSpace(b)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = bytes.TrimSpace([]byte(s))
	}
	var obj map[string]any
	if len(raw) == 0 || raw[0] != '{' || json.Unmarshal(raw, &obj) != nil {
		return nil
	}

	m.SubscriptionID = stringField(obj, "subscription_id")
	m.UserID = stringField(obj, "user_id")
	m.PlanID = stringField(obj, "plan_id")
	delete(obj, "subscription_id")
	delete(obj, "user_id")
	delete(obj, "plan_id")
	if len(obj) > 0 {
		m.Extra = obj
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.SubscriptionID != "" {
		out["subscription_id"] = m.SubscriptionID
	}
	if m.UserID != "" {
		out["user_id"] = m.UserID
	}
	if m.PlanID != "" {
		out["plan_id"] = m.PlanID
	}
	return json.Marshal(out)
}

func (m Metadata) IsEmpty() bool {
	return m.SubscriptionID == "" && m.UserID == "" && m.PlanID == "" && len(m.Extra) == 0
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}
