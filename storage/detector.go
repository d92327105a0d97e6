package storage

import (
	"time"

	"github.com/cacheoracle/cacheoracle/model"
)

// Detect compares a new uptime reading with the previous record of the same
// connection. A reading lower than its predecessor means the server restarted;
// the reboot time is estimated as now minus the new uptime. With no previous
// record there is nothing to compare against and no reboot is reported.
func Detect(connID string, previous *model.UptimeRecord, uptimeSeconds int64, now time.Time) (*model.UptimeRecord, *model.RebootEvent) {
	record := &model.UptimeRecord{
		ConnectionID:  connID,
		UptimeSeconds: uptimeSeconds,
		RecordedAt:    now,
	}
	if previous == nil || uptimeSeconds >= previous.UptimeSeconds {
		return record, nil
	}
	record.ServerRebooted = true
	return record, &model.RebootEvent{
		ConnectionID:          connID,
		PreviousUptimeSeconds: previous.UptimeSeconds,
		RebootTime:            now.Add(-time.Duration(uptimeSeconds) * time.Second),
		DetectedAt:            now,
	}
}
