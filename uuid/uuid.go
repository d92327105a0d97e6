package uuid

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// Use pool to avoid concurrent access for rand.Source
var entropyPool = sync.Pool{
	New: func() interface{} {
		return rand.New(rand.NewSource(time.Now().UnixNano()))
	},
}

// Generate Unique ID
// Currently using ULID, this maybe conflict with other process with very low possibility
func GenUniqueID() string {
	return GenUniqueIDAt(time.Now())
}

// GenUniqueIDAt embeds t in the ID, so IDs of snapshots sort by observation
// time rather than by write time.
func GenUniqueIDAt(t time.Time) string {
	entropy := entropyPool.Get().(*rand.Rand)
	defer entropyPool.Put(entropy)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return id.String()
}

// timeFromUniqueID returns the millisecond timestamp embedded in id.
func timeFromUniqueID(s string) (time.Time, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	ms := int64(id.Time())
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)), nil
}

func ElapsedMilliSecondFromUniqueID(s string) (int64, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return 0, err
	}
	t := id.Time()
	now := ulid.Now()
	if t < now {
		return int64(now - t), nil
	} else {
		return 0, errors.New("id has a future timestamp")
	}
}
