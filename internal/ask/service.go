// Package ask turns a natural-language question into an answer: it ranks the
// schema, asks the model for SQL, runs the guard, executes the authorized
// statement and summarizes the rows.
package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/askmesh/askmesh/internal/audit"
	"github.com/askmesh/askmesh/internal/auth"
	"github.com/askmesh/askmesh/internal/contextpack"
	"github.com/askmesh/askmesh/internal/nl2sql"
	"github.com/askmesh/askmesh/internal/observability"
	"github.com/askmesh/askmesh/internal/query"
	"github.com/askmesh/askmesh/internal/relevance"
	"github.com/askmesh/askmesh/internal/schema"
	"github.com/askmesh/askmesh/internal/sqlguard"
)

const (
	DefaultSampleRows = 50

	placeholderInsight = "(summary not generated: no model configured)"
	failedInsight      = "(summary not generated: the model call failed)"
)

type CatalogProvider interface {
	Catalog(ctx context.Context) (*schema.Catalog, error)
}

type Dependencies struct {
	Catalogs   CatalogProvider
	Generator  nl2sql.Generator
	Summarizer nl2sql.Summarizer
	Engine     query.Engine
	Recorder   audit.Recorder
	Logger     *slog.Logger
}

type Options struct {
	Ranker         relevance.Ranker
	Guard          sqlguard.Guard
	CoerceLiterals bool
	SampleRows     int
	Debug          bool
}

type Question struct {
	Text string `json:"question"`
	// Limit overrides the guard default row limit when > 0.
	Limit      int   `json:"limit,omitempty"`
	SampleRows int   `json:"sample,omitempty"`
	Debug      *bool `json:"debug,omitempty"`
}

// Debug exposes every intermediate artifact of one request.
type Debug struct {
	Context    string                 `json:"context"`
	Prompt     string                 `json:"llm_sql_prompt"`
	RawSQL     string                 `json:"llm_sql_raw"`
	Extracted  string                 `json:"sql_clean"`
	Resolved   string                 `json:"sql_after_handles"`
	FinalSQL   string                 `json:"sql_final"`
	SampleCSV  string                 `json:"sample_csv,omitempty"`
	Stats      map[string]ColumnStats `json:"stats,omitempty"`
	Provider   string                 `json:"provider,omitempty"`
	Model      string                 `json:"model,omitempty"`
	Candidates []string               `json:"candidate_tables"`
}

type Answer struct {
	SQL        string           `json:"sql"`
	RowCount   int              `json:"row_count"`
	Truncated  bool             `json:"truncated"`
	Columns    []string         `json:"columns"`
	Preview    []map[string]any `json:"data_preview"`
	Insight    string           `json:"insight"`
	TablesUsed []string         `json:"tables_used"`
	DurationMS int64            `json:"duration_ms"`
	Debug      *Debug           `json:"debug,omitempty"`
}

type Translation struct {
	SQL        string   `json:"sql"`
	TablesUsed []string `json:"tables_used"`
	Debug      *Debug   `json:"debug,omitempty"`
}

type Service struct {
	deps Dependencies
	opts Options

	mu             sync.Mutex
	coercerCatalog *schema.Catalog
	coercer        *sqlguard.Coercer
}

func NewService(deps Dependencies, opts Options) *Service {
	if deps.Recorder == nil {
		deps.Recorder = audit.NopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}
	if opts.Guard.DefaultLimit <= 0 {
		opts.Guard.DefaultLimit = sqlguard.DefaultLimit
	}
	return &Service{deps: deps, opts: opts}
}

// Catalog returns the current schema catalog.
func (s *Service) Catalog(ctx context.Context) (*schema.Catalog, error) {
	if s.deps.Catalogs == nil {
		return nil, fmt.Errorf("schema catalog is not configured")
	}
	catalog, err := s.deps.Catalogs.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema catalog: %w", err)
	}
	return catalog, nil
}

// Pack ranks the catalog for question and renders the context the model
// would receive.
func (s *Service) Pack(ctx context.Context, question string) (contextpack.Pack, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return contextpack.Pack{}, ErrQuestionRequired
	}
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return contextpack.Pack{}, err
	}
	return contextpack.Build(catalog, s.opts.Ranker.Select(catalog, question)), nil
}

// Translate runs the question through the model and the guard without
// executing anything.
func (s *Service) Translate(ctx context.Context, question Question) (Translation, error) {
	started := time.Now()
	authorized, err := s.authorize(ctx, question)
	if err != nil {
		s.record(ctx, audit.OperationTranslate, question.Text, authorized, err, nil, started)
		return Translation{}, err
	}
	s.record(ctx, audit.OperationTranslate, question.Text, authorized, nil, nil, started)

	translation := Translation{
		SQL:        authorized.verdict.Final,
		TablesUsed: authorized.pack.Tables,
	}
	if s.debugEnabled(question) {
		translation.Debug = authorized.debug()
	}
	return translation, nil
}

// Ask answers a question end to end. A result without rows gets a fixed
// insight and no summary call.
func (s *Service) Ask(ctx context.Context, question Question) (Answer, error) {
	started := time.Now()
	authorized, err := s.authorize(ctx, question)
	if err != nil {
		s.record(ctx, audit.OperationAsk, question.Text, authorized, err, nil, started)
		return Answer{}, err
	}
	if s.deps.Engine == nil {
		s.record(ctx, audit.OperationAsk, question.Text, authorized, ErrEngineUnavailable, nil, started)
		return Answer{}, ErrEngineUnavailable
	}

	result, err := s.deps.Engine.Execute(ctx, query.Request{
		SQL:      authorized.verdict.Final,
		RowLimit: authorized.limit,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrExecution, err)
		s.record(ctx, audit.OperationAsk, question.Text, authorized, err, nil, started)
		return Answer{}, err
	}
	rowCount := len(result.Rows)
	s.record(ctx, audit.OperationAsk, question.Text, authorized, nil, &rowCount, started)

	sampleRows := s.opts.SampleRows
	if question.SampleRows > 0 {
		sampleRows = question.SampleRows
	}
	sampleCSV, err := SampleCSV(result.Columns, result.Rows, sampleRows)
	if err != nil {
		return Answer{}, err
	}
	stats := QuickStats(result.Columns, result.Rows)

	answer := Answer{
		SQL:        authorized.verdict.Final,
		RowCount:   rowCount,
		Truncated:  result.Truncated,
		Columns:    result.Columns,
		Preview:    Preview(result.Columns, result.Rows, sampleRows),
		Insight:    s.insight(ctx, authorized.question, authorized.verdict.Final, rowCount, sampleCSV, stats),
		TablesUsed: authorized.pack.Tables,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if s.debugEnabled(question) {
		answer.Debug = authorized.debug()
		answer.Debug.SampleCSV = sampleCSV
		answer.Debug.Stats = stats
	}
	return answer, nil
}

// Check runs the guard on caller-supplied SQL against caller-supplied tables.
// Literal coercion uses the current catalog when one can be loaded.
func (s *Service) Check(ctx context.Context, sql string, tables []string) (sqlguard.Verdict, error) {
	started := time.Now()
	guard := s.opts.Guard
	if s.opts.CoerceLiterals && s.deps.Catalogs != nil {
		catalog, err := s.deps.Catalogs.Catalog(ctx)
		if err != nil {
			s.deps.Logger.WarnContext(ctx, "check without literal coercion",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("error", err.Error()),
			)
		} else {
			guard.Coercer = s.coercerFor(catalog)
		}
	}

	verdict, err := guard.Check(sql, tables)
	outcome := authorization{verdict: verdict, pack: contextpack.Pack{Tables: tables}}
	if err != nil {
		err = &RejectedError{Verdict: verdict, Tables: append([]string(nil), tables...), Err: err}
	}
	s.record(ctx, audit.OperationCheck, "", outcome, err, nil, started)
	return verdict, err
}

type authorization struct {
	question string
	limit    int
	pack     contextpack.Pack
	prompt   nl2sql.Prompt
	model    nl2sql.Result
	verdict  sqlguard.Verdict
}

func (a authorization) debug() *Debug {
	return &Debug{
		Context:    a.pack.Text,
		Prompt:     a.prompt.User,
		RawSQL:     a.verdict.Raw,
		Extracted:  a.verdict.Extracted,
		Resolved:   a.verdict.Resolved,
		FinalSQL:   a.verdict.Final,
		Provider:   a.model.Provider,
		Model:      a.model.Model,
		Candidates: a.pack.Tables,
	}
}

func (s *Service) authorize(ctx context.Context, question Question) (authorization, error) {
	out := authorization{question: strings.TrimSpace(question.Text)}
	if out.question == "" {
		return out, ErrQuestionRequired
	}

	catalog, err := s.Catalog(ctx)
	if err != nil {
		return out, err
	}
	out.pack = contextpack.Build(catalog, s.opts.Ranker.Select(catalog, out.question))

	out.limit = s.opts.Guard.DefaultLimit
	if question.Limit > 0 {
		out.limit = question.Limit
	}
	out.prompt = nl2sql.BuildSQLPrompt(out.pack.Text, out.question, out.limit)

	if s.deps.Generator == nil {
		return out, ErrGeneratorUnavailable
	}
	out.model, err = s.deps.Generator.Generate(ctx, out.prompt)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	guard := s.opts.Guard
	guard.DefaultLimit = out.limit
	if s.opts.CoerceLiterals {
		guard.Coercer = s.coercerFor(catalog)
	}
	out.verdict, err = guard.Authorize(out.model.Raw, out.pack.Tables)
	if err != nil {
		return out, &RejectedError{Verdict: out.verdict, Tables: out.pack.Tables, Err: err}
	}
	return out, nil
}

func (s *Service) insight(ctx context.Context, question, finalSQL string, rowCount int, sampleCSV string, stats map[string]ColumnStats) string {
	if rowCount == 0 {
		return "No rows returned by the query.\n" +
			"Executed statement: " + finalSQL + "\n" +
			"Suggestions: widen the period, relax the filters, check the date columns."
	}
	if s.deps.Summarizer == nil {
		return placeholderInsight
	}
	prompt, err := nl2sql.BuildInterpretPrompt(question, sampleCSV, stats)
	if err == nil {
		var result nl2sql.Result
		result, err = s.deps.Summarizer.Summarize(ctx, prompt)
		if err == nil {
			return result.Raw
		}
	}
	s.deps.Logger.WarnContext(ctx, "insight generation failed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("error", err.Error()),
	)
	return failedInsight
}

// coercerFor memoizes the coercer of the most recent catalog.
func (s *Service) coercerFor(catalog *schema.Catalog) *sqlguard.Coercer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.coercer == nil || s.coercerCatalog != catalog {
		s.coercer = sqlguard.NewCoercer(catalog)
		s.coercerCatalog = catalog
	}
	return s.coercer
}

func (s *Service) debugEnabled(question Question) bool {
	if question.Debug != nil {
		return *question.Debug
	}
	return s.opts.Debug
}

// record writes the verdict to the audit trail. Requests that failed before
// the guard ran are not audited.
func (s *Service) record(ctx context.Context, operation, question string, outcome authorization, err error, rowCount *int, started time.Time) {
	var rejected *RejectedError
	isRejected := errors.As(err, &rejected)
	if !isRejected && outcome.verdict.Final == "" {
		return
	}
	authorized := !isRejected

	reason := ""
	if isRejected {
		reason, _ = sqlguard.Reason(rejected.Err)
	}
	observability.ObserveGuardVerdict(authorized, reason)

	traceID := observability.TraceIDFromContext(ctx)
	entry := audit.Entry{
		Principal:  auth.PrincipalFromContext(ctx),
		TraceID:    traceID,
		Operation:  operation,
		Question:   question,
		Tables:     outcome.pack.Tables,
		RawSQL:     outcome.verdict.Raw,
		FinalSQL:   outcome.verdict.Final,
		Authorized: authorized,
		Reason:     reason,
		RowCount:   rowCount,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if recordErr := s.deps.Recorder.Record(ctx, entry); recordErr != nil {
		s.deps.Logger.WarnContext(ctx, "audit record failed",
			slog.String("trace_id", traceID),
			slog.String("operation", operation),
			slog.String("error", recordErr.Error()),
		)
	}

	level := slog.LevelInfo
	if !authorized {
		level = slog.LevelWarn
	}
	s.deps.Logger.Log(ctx, level, "guard verdict",
		slog.String("trace_id", traceID),
		slog.String("operation", operation),
		slog.Bool("authorized", authorized),
		slog.String("reason", reason),
		slog.Any("tables", outcome.pack.Tables),
	)
}
