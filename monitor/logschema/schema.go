package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个日志事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

var schemas = map[string]Schema{
	"source_loaded": {
		Event:    "source_loaded",
		Required: []string{"source", "loaded", "rejected", "records"},
	},
	"parse_error": {
		Event:    "parse_error",
		Required: []string{"source", "line", "error"},
	},
	"record_set": {
		Event:    "record_set",
		Required: []string{"symbol", "price", "volume"},
	},
	"record_removed": {
		Event:    "record_removed",
		Required: []string{"symbol", "records"},
	},
	"lookup_miss": {
		Event:    "lookup_miss",
		Required: []string{"symbol"},
	},
	"feed_update": {
		Event:    "feed_update",
		Required: []string{"url", "applied", "rejected"},
	},
	"feed_disconnected": {
		Event:    "feed_disconnected",
		Required: []string{"url", "error", "clean"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 检查日志字段是否包含 schema 中要求的 key。未登记的事件直接放行。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ","))
	}
	return nil
}
