// Package dbsink provides the WriteKeysToDatabaseTable sink: batched
// Postgres writes of per-frame matrices via the COPY protocol. Each
// configured key maps to a schema-qualified table; matrix rows become table
// rows prefixed with the run id and the frame's video identity.
package dbsink

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vk/vidpipe/internal/config"
	"github.com/vk/vidpipe/internal/ctxlog"
	"github.com/vk/vidpipe/internal/worker"
)

// prefixColumns lead every table this sink writes to.
var prefixColumns = []string{"run_id", "video_id", "video_file_name", "frame_number"}

// Module implements worker.Module for this package.
type Module struct{}

// Register registers the worker with the engine.
func (m *Module) Register(r *worker.Registry) {
	r.RegisterWorker("WriteKeysToDatabaseTable", newWriteKeysToDatabaseTable)
}

type writeKeysToDatabaseTable struct {
	runID       string
	dsn         string
	keys        []string
	keysHeaders []string
	schemas     []string
	tables      []string
	bufferSize  int

	pool   *pgxpool.Pool
	buffer []worker.Item
}

func newWriteKeysToDatabaseTable(task *config.Task, rt *worker.Runtime) (worker.Worker, error) {
	dsn, err := task.Params.RequireString(task.Name, "dsn")
	if err != nil {
		return nil, err
	}
	keys, err := task.Params.RequireStrings(task.Name, "keys")
	if err != nil {
		return nil, err
	}
	headers, err := task.Params.RequireStrings(task.Name, "keys_headers")
	if err != nil {
		return nil, err
	}
	schemas, err := task.Params.RequireStrings(task.Name, "schemas")
	if err != nil {
		return nil, err
	}
	tables, err := task.Params.RequireStrings(task.Name, "tables")
	if err != nil {
		return nil, err
	}
	if len(headers) != len(keys) || len(schemas) != len(keys) || len(tables) != len(keys) {
		return nil, config.Errorf(task.Name, "keys, keys_headers, schemas and tables must be lists of equal length")
	}

	w := &writeKeysToDatabaseTable{
		runID:       rt.RunID.String(),
		dsn:         dsn,
		keys:        keys,
		keysHeaders: headers,
		schemas:     schemas,
		tables:      tables,
		bufferSize:  task.Params.Int("buffer_size", 100),
	}
	if w.bufferSize <= 0 {
		return nil, config.Errorf(task.Name, "buffer_size must be positive")
	}
	return w, nil
}

func (w *writeKeysToDatabaseTable) RequiredKeys() []string { return w.keys }

// Startup connects with retry: the database may still be coming up when the
// pipeline starts.
func (w *writeKeysToDatabaseTable) Startup(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	expBackoff.InitialInterval = time.Second

	operation := func() error {
		pool, err := pgxpool.New(ctx, w.dsn)
		if err != nil {
			return err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return err
		}
		w.pool = pool
		return nil
	}
	if err := backoff.Retry(operation, expBackoff); err != nil {
		return fmt.Errorf("failed to connect to database after retries: %w", err)
	}
	logger.Debug("Database connection established.")
	return nil
}

// Process buffers the item; a full buffer triggers one COPY per configured
// key. Flushed items are forwarded downstream.
func (w *writeKeysToDatabaseTable) Process(ctx context.Context, item worker.Item) ([]worker.Item, error) {
	w.buffer = append(w.buffer, item)
	if len(w.buffer) < w.bufferSize {
		return nil, nil
	}
	return w.flushBuffer(ctx)
}

// Flush writes the partial batch left when the input stream ends, so no
// buffered item is lost at shutdown.
func (w *writeKeysToDatabaseTable) Flush(ctx context.Context) ([]worker.Item, error) {
	if len(w.buffer) == 0 {
		return nil, nil
	}
	return w.flushBuffer(ctx)
}

// Shutdown closes the connection pool.
func (w *writeKeysToDatabaseTable) Shutdown(ctx context.Context) error {
	if w.pool != nil {
		w.pool.Close()
	}
	return nil
}

func (w *writeKeysToDatabaseTable) flushBuffer(ctx context.Context) ([]worker.Item, error) {
	logger := ctxlog.FromContext(ctx)
	for i, key := range w.keys {
		columns, rows, err := w.collectRows(i, key)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		copied, err := w.pool.CopyFrom(ctx,
			pgx.Identifier{w.schemas[i], w.tables[i]},
			columns,
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return nil, fmt.Errorf("copy into %s.%s failed: %w", w.schemas[i], w.tables[i], err)
		}
		logger.Debug("Batch copied.", "table", w.schemas[i]+"."+w.tables[i], "rows", copied)
	}
	flushed := w.buffer
	w.buffer = nil
	return flushed, nil
}

// collectRows flattens the buffered items' matrices for one key into COPY
// rows. The value columns come from the header key of the first item that
// has them.
func (w *writeKeysToDatabaseTable) collectRows(keyIdx int, key string) ([]string, [][]any, error) {
	var valueColumns []string
	for _, item := range w.buffer {
		if headers := stringsOf(item[w.keysHeaders[keyIdx]]); len(headers) > 0 {
			valueColumns = headers
			break
		}
	}
	if valueColumns == nil {
		return nil, nil, fmt.Errorf("no item in batch carries header key %q", w.keysHeaders[keyIdx])
	}
	columns := append(append([]string{}, prefixColumns...), valueColumns...)

	var rows [][]any
	for _, item := range w.buffer {
		matrix, err := asMatrix(item[key])
		if err != nil {
			return nil, nil, fmt.Errorf("key %q: %w", key, err)
		}
		info := videoInfo(item)
		for _, matrixRow := range matrix {
			if len(matrixRow) != len(valueColumns) {
				return nil, nil, fmt.Errorf("key %q: row has %d values, header has %d columns", key, len(matrixRow), len(valueColumns))
			}
			row := make([]any, 0, len(columns))
			row = append(row, w.runID, info.id, info.fileName, item["frame_number"])
			for _, v := range matrixRow {
				row = append(row, v)
			}
			rows = append(rows, row)
		}
	}
	return columns, rows, nil
}
