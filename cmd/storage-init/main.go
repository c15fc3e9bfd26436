package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"breakdown-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")
	ctx := context.Background()

	switch backend := os.Getenv("STORAGE_BACKEND"); backend {
	case "", "sql":
		path := os.Getenv("DATABASE_PATH")
		if path == "" {
			path = "data/tasks.db"
		}
		store, err := storage.OpenSQLite(path)
		if err != nil {
			log.Fatalf("migrate %s: %v", path, err)
		}
		if err := store.Close(); err != nil {
			log.Warnf("close database: %v", err)
		}
		log.WithField("path", path).Info("sqlite schema migrated")
	case "tables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING")
		}
		if err := createTables(ctx, connStr, tableNames()); err != nil {
			log.Fatalf("create tables: %v", err)
		}
	default:
		log.Fatalf("unsupported STORAGE_BACKEND %q", backend)
	}

	if queue := os.Getenv("EVENTS_QUEUE"); queue != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		if err := createQueue(ctx, connStr, queue); err != nil {
			log.Fatalf("create queue: %v", err)
		}
	}

	log.Info("storage init complete")
}

// tableNames falls back to the same table names the service uses.
func tableNames() []string {
	return []string{
		envOr("TASKS_TABLE", "Tasks"),
		envOr("SUBTASKS_TABLE", "Subtasks"),
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func createTables(ctx context.Context, connStr string, names []string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := svc.NewClient(name).CreateTable(ctx, nil); err != nil && !alreadyExists(err, string(aztables.TableAlreadyExists)) {
			return err
		}
		log.WithField("table", name).Info("table ready")
	}
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil && !alreadyExists(err, "QueueAlreadyExists") {
		return err
	}
	log.WithField("queue", name).Info("queue ready")
	return nil
}

func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
