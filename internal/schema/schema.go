// Package schema introspects the warehouse to build the table context handed
// to the SQL generator. Sampling goes through the same bounded executor as
// user queries, so a pathological table can never stall prompt building.
package schema

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/duckgate/duckgate/internal/nl2sql"
	"github.com/duckgate/duckgate/internal/query"
)

const (
	defaultSampleRows    = 5
	introspectionTimeout = 5 * time.Second
	introspectionCeiling = 1000
	listTablesSQL        = "SELECT table_name FROM information_schema.tables " +
		"WHERE table_type = 'BASE TABLE' " +
		"AND table_schema NOT IN ('information_schema', 'pg_catalog') " +
		"ORDER BY table_name"
)

type Introspector struct {
	Engine     query.Engine
	SampleRows int
}

func NewIntrospector(engine query.Engine, sampleRows int) *Introspector {
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}
	return &Introspector{Engine: engine, SampleRows: sampleRows}
}

// TableContexts lists user tables and attaches column names plus a handful of
// sample rows per table. A table that fails to sample is listed without
// samples rather than failing the whole context.
func (i *Introspector) TableContexts(ctx context.Context) ([]nl2sql.TableContext, error) {
	listed, err := i.Engine.Execute(ctx, query.Request{
		SQL:            listTablesSQL,
		HardRowCeiling: introspectionCeiling,
		Timeout:        introspectionTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("list warehouse tables: %w", err)
	}

	contexts := make([]nl2sql.TableContext, 0, listed.RowCount)
	for _, row := range listed.Rows {
		name, ok := row["table_name"].(string)
		if !ok || name == "" {
			continue
		}
		tableCtx := nl2sql.TableContext{TableName: name}

		sampled, err := i.Engine.Execute(ctx, query.Request{
			SQL:            "SELECT * FROM " + quoteIdent(name) + " LIMIT " + strconv.Itoa(i.SampleRows),
			HardRowCeiling: i.SampleRows,
			Timeout:        introspectionTimeout,
		})
		if err == nil {
			tableCtx.Columns = sampled.Columns
			for _, record := range sampled.Rows {
				values := make([]any, len(sampled.Columns))
				for c, column := range sampled.Columns {
					values[c] = record[column]
				}
				tableCtx.SampleRows = append(tableCtx.SampleRows, values)
			}
		}
		contexts = append(contexts, tableCtx)
	}
	return contexts, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
