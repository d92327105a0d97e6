package info

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cacheoracle/cacheoracle/model"
)

type bucket int

const (
	bucketRead bucket = iota + 1
	bucketWrite
	bucketDelete
)

const cmdstatPrefix = "cmdstat_"

// commandBuckets maps a command name to the operation total it counts toward.
var commandBuckets = map[string]bucket{
	"get":     bucketRead,
	"mget":    bucketRead,
	"hget":    bucketRead,
	"hgetall": bucketRead,

	"set":   bucketWrite,
	"mset":  bucketWrite,
	"hset":  bucketWrite,
	"hmset": bucketWrite,
	"lpush": bucketWrite,
	"rpush": bucketWrite,
	"sadd":  bucketWrite,
	"zadd":  bucketWrite,

	"del":    bucketDelete,
	"unlink": bucketDelete,
	"hdel":   bucketDelete,
	"lpop":   bucketDelete,
	"rpop":   bucketDelete,
	"srem":   bucketDelete,
	"zrem":   bucketDelete,
}

var callsPattern = regexp.MustCompile(`calls=(\d+)`)

// addCommandStat folds one cmdstat_<name> line into ops. Commands outside
// the bucket table are ignored.
func addCommandStat(ops *model.Operations, key, value string) {
	b, ok := commandBuckets[strings.ToLower(strings.TrimPrefix(key, cmdstatPrefix))]
	if !ok {
		return
	}
	m := callsPattern.FindStringSubmatch(value)
	if m == nil {
		return
	}
	calls, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return
	}
	switch b {
	case bucketRead:
		ops.Reads += calls
	case bucketWrite:
		ops.Writes += calls
	case bucketDelete:
		ops.Deletes += calls
	}
}
