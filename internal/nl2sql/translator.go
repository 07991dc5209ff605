// Package nl2sql turns a natural-language question into candidate SQL via an
// OpenAI-compatible provider. Its output is untrusted generator text: every
// statement it produces still goes through the safety gate before execution.
package nl2sql

import "context"

type TableContext struct {
	TableName  string   `json:"table_name"`
	Columns    []string `json:"columns"`
	SampleRows [][]any  `json:"sample_rows"`
}

type Request struct {
	Question string         `json:"question"`
	RowLimit int            `json:"row_limit"`
	Tables   []TableContext `json:"tables"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
