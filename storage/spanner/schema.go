package spanner

import (
	"context"
	"fmt"
	"regexp"

	"cloud.google.com/go/spanner"
	database "cloud.google.com/go/spanner/admin/database/apiv1"
	instance "cloud.google.com/go/spanner/admin/instance/apiv1"
	databasepb "google.golang.org/genproto/googleapis/spanner/admin/database/v1"
	instancepb "google.golang.org/genproto/googleapis/spanner/admin/instance/v1"
	"google.golang.org/grpc/codes"
)

const (
	metricsTable = "redis_metrics"
	uptimeTable  = "redis_uptime_history"
	rebootsTable = "redis_reboots"
)

// Schema is the DDL of the three tables the store writes to.
var Schema = []string{
	`CREATE TABLE redis_metrics (
		connection_id     STRING(128) NOT NULL,
		seq               INT64 NOT NULL,
		id                STRING(32) NOT NULL,
		timestamp         TIMESTAMP NOT NULL,
		hit_ratio         FLOAT64 NOT NULL,
		memory_used_bytes INT64 NOT NULL,
		ops_per_sec       INT64 NOT NULL,
		uptime_in_seconds INT64 NOT NULL,
		row_data          BYTES(MAX) NOT NULL
	) PRIMARY KEY (connection_id, seq DESC)`,
	`CREATE TABLE redis_uptime_history (
		connection_id   STRING(128) NOT NULL,
		seq             INT64 NOT NULL,
		uptime_seconds  INT64 NOT NULL,
		recorded_at     TIMESTAMP NOT NULL,
		server_rebooted BOOL NOT NULL
	) PRIMARY KEY (connection_id, seq DESC)`,
	`CREATE TABLE redis_reboots (
		connection_id           STRING(128) NOT NULL,
		seq                     INT64 NOT NULL,
		previous_uptime_seconds INT64 NOT NULL,
		reboot_time             TIMESTAMP NOT NULL,
		detected_at             TIMESTAMP NOT NULL
	) PRIMARY KEY (connection_id, seq DESC)`,
}

// CreateInstance creates the instance of uri unless it already exists.
func CreateInstance(ctx context.Context, uri string) error {
	matches := regexp.MustCompile("projects/(.*)/instances/(.*)/databases/.*").FindStringSubmatch(uri)
	if matches == nil || len(matches) != 3 {
		return fmt.Errorf("invalid instance id %s", uri)
	}
	instanceName := "projects/" + matches[1] + "/instances/" + matches[2]

	instanceAdminClient, err := instance.NewInstanceAdminClient(ctx)
	if err != nil {
		return err
	}
	defer instanceAdminClient.Close()

	_, err = instanceAdminClient.GetInstance(ctx, &instancepb.GetInstanceRequest{
		Name: instanceName,
	})
	if err != nil && spanner.ErrCode(err) != codes.NotFound {
		return err
	}
	if err == nil {
		return nil
	}

	op, err := instanceAdminClient.CreateInstance(ctx, &instancepb.CreateInstanceRequest{
		Parent:     "projects/" + matches[1],
		InstanceId: matches[2],
		Instance: &instancepb.Instance{
			Config:      "projects/" + matches[1] + "/instanceConfigs/emulator-config",
			DisplayName: matches[2],
			NodeCount:   1,
		},
	})
	if err != nil {
		return err
	}
	_, err = op.Wait(ctx)
	return err
}

// CreateDatabase creates the database of uri with Schema unless it already exists.
func CreateDatabase(ctx context.Context, uri string) error {
	matches := regexp.MustCompile("^(.*)/databases/(.*)$").FindStringSubmatch(uri)
	if matches == nil || len(matches) != 3 {
		return fmt.Errorf("invalid database id %s", uri)
	}

	databaseAdminClient, err := database.NewDatabaseAdminClient(ctx)
	if err != nil {
		return err
	}
	defer databaseAdminClient.Close()
	_, err = databaseAdminClient.GetDatabase(ctx, &databasepb.GetDatabaseRequest{Name: uri})
	if err != nil && spanner.ErrCode(err) != codes.NotFound {
		return err
	}
	if err == nil {
		// db exists
		return nil
	}

	op, err := databaseAdminClient.CreateDatabase(ctx, &databasepb.CreateDatabaseRequest{
		Parent:          matches[1],
		CreateStatement: "CREATE DATABASE `" + matches[2] + "`",
		ExtraStatements: Schema,
	})
	if err != nil {
		return err
	}
	if _, err = op.Wait(ctx); err != nil {
		return err
	}
	return nil
}
