package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/jumadata/warehouse-worker/internal/config"
)

// Client wraps the BigQuery connection for both the silver loader and the
// gold materializer.
type Client struct {
	bq          *bigquery.Client
	projectID   string
	dataset     string
	goldDataset string
	goldTables  map[string]config.GoldTable
	dateColumns map[string]bool
}

func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	bq, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}

	return &Client{
		bq:          bq,
		projectID:   cfg.ProjectID,
		dataset:     cfg.DatasetID,
		goldDataset: cfg.GoldDatasetID,
		goldTables:  config.GoldTables,
		dateColumns: DateColumnSet(config.DateColumns),
	}, nil
}

func (c *Client) Close() error {
	return c.bq.Close()
}

// DeleteRange removes all rows of table whose filter field falls inside the
// inclusive [start, end] date range. Run before re-appending a batch that may
// overlap previously loaded data, so re-runs never duplicate rows.
func (c *Client) DeleteRange(ctx context.Context, table, filterField string, start, end time.Time) error {
	query := deleteRangeQuery(c.projectID, c.dataset, table, filterField, start, end)
	log.Printf("Deleting %s rows for range %s..%s", table, start.Format("2006-01-02"), end.Format("2006-01-02"))

	if err := c.runQuery(ctx, query); err != nil {
		return fmt.Errorf("failed to delete range from %s: %w", table, err)
	}
	return nil
}

// LoadBatch normalizes and loads a record batch into table. An empty batch is
// a no-op. The batch travels as an NDJSON load job with schema autodetection,
// appending or truncating per mode.
func (c *Client) LoadBatch(ctx context.Context, table string, records []map[string]any, mode config.LoadMode) error {
	if len(records) == 0 {
		log.Printf("No records to load into %s", table)
		return nil
	}

	rows := NormalizeRecords(records, c.dateColumns)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to encode row for %s: %w", table, err)
		}
	}

	source := bigquery.NewReaderSource(&buf)
	source.SourceFormat = bigquery.JSON
	source.AutoDetect = true

	loader := c.bq.Dataset(c.dataset).Table(table).LoaderFrom(source)
	if mode == config.LoadTruncate {
		loader.WriteDisposition = bigquery.WriteTruncate
	} else {
		loader.WriteDisposition = bigquery.WriteAppend
	}

	log.Printf("Loading %d rows into %s (%s)", len(rows), table, mode)

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start load job for %s: %w", table, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for load job for %s: %w", table, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job for %s failed: %w", table, err)
	}

	log.Printf("Load into %s completed", table)
	return nil
}

// Materialize drops and recreates the gold table behind viewName as a
// partitioned, clustered copy of the view. All-or-nothing per view: a create
// failure leaves the table absent, never half-written under the old layout.
func (c *Client) Materialize(ctx context.Context, viewName string) error {
	spec, ok := c.goldTables[viewName]
	if !ok {
		return fmt.Errorf("no materialization config for view %s", viewName)
	}

	target := MaterializedTableName(viewName)

	if err := c.runQuery(ctx, dropTableQuery(c.projectID, c.goldDataset, target)); err != nil {
		return fmt.Errorf("failed to drop %s: %w", target, err)
	}
	if err := c.runQuery(ctx, createTableQuery(c.projectID, c.goldDataset, target, viewName, spec)); err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	log.Printf("Materialized %s from %s", target, viewName)
	return nil
}

func (c *Client) runQuery(ctx context.Context, sql string) error {
	job, err := c.bq.Query(sql).Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}
