package probe

import (
	"fmt"
	"strconv"

	"github.com/cacheoracle/cacheoracle/model"
)

const minSlowlogFields = 4

// decodeSlowlog converts a raw SLOWLOG GET reply. Malformed entries are
// dropped instead of failing the whole reply.
func decodeSlowlog(reply interface{}) []model.SlowlogEntry {
	entries := []model.SlowlogEntry{}
	items, ok := reply.([]interface{})
	if !ok {
		return entries
	}
	for _, item := range items {
		fields, ok := item.([]interface{})
		if !ok || len(fields) < minSlowlogFields {
			continue
		}
		entry := model.SlowlogEntry{
			ID:        toInt64(fields[0]),
			Timestamp: toInt64(fields[1]),
			Duration:  toInt64(fields[2]),
			Command:   toStrings(fields[3]),
		}
		if len(fields) > 4 {
			entry.ClientIP = toString(fields[4])
		}
		if len(fields) > 5 {
			entry.ClientName = toString(fields[5])
		}
		entries = append(entries, entry)
	}
	return entries
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func toStrings(v interface{}) []string {
	args, ok := v.([]interface{})
	if !ok {
		return []string{toString(v)}
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		out = append(out, toString(arg))
	}
	return out
}
