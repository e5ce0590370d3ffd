package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"authguard/internal/model"
)

func ParseJSONBytes(data []byte) (*model.RawRecord, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONMap(obj map[string]interface{}) *model.RawRecord {
	extras := make(map[string]string, len(obj))
	for key, val := range obj {
		extras[strings.ToLower(key)] = fmt.Sprint(val)
	}
	return &model.RawRecord{
		TenantHint: firstNonEmpty(extras, "tenant_hint", "tenant", "tenant_id", "org"),
		SourceIP:   firstNonEmpty(extras, "source_ip", "src", "src_ip", "ip", "remote_addr"),
		Username:   firstNonEmpty(extras, "username", "user", "login", "account"),
		Protocol:   firstNonEmpty(extras, "protocol", "proto", "service"),
		Outcome:    firstNonEmpty(extras, "outcome", "result", "status"),
		Timestamp:  firstNonEmpty(extras, "timestamp", "time", "ts"),
		RawRef:     firstNonEmpty(extras, "raw_ref", "ref", "event_id"),
		Extras:     extras,
	}
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}
