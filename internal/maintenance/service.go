package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/askmesh/askmesh/internal/audit"
	"github.com/askmesh/askmesh/internal/schema"
	"github.com/askmesh/askmesh/internal/storage"
)

const maxIssueSamples = 5

type CatalogProvider interface {
	Catalog(ctx context.Context) (*schema.Catalog, error)
}

type Config struct {
	// AuditRetention is how long audit entries are kept. Zero keeps them
	// forever.
	AuditRetention    time.Duration
	RetentionInterval time.Duration
	IntegrityInterval time.Duration
}

// Service runs the background jobs of askmesh-api: audit retention and the
// table object integrity check. Jobs whose dependencies are nil or whose
// interval is zero are skipped.
type Service struct {
	Audit       audit.Pruner
	Catalogs    CatalogProvider
	ObjectStore storage.ObjectReader
	// TableObjects maps table names to the object keys the DuckDB engine
	// reads for them.
	TableObjects map[string][]string
	Config       Config
	Logger       *slog.Logger
	Clock        func() time.Time
}

type RetentionSummary struct {
	Cutoff         time.Time `json:"cutoff"`
	EntriesDeleted int64     `json:"entries_deleted"`
}

type IntegritySummary struct {
	TablesScanned       int `json:"tables_scanned"`
	ObjectsChecked      int `json:"objects_checked"`
	MissingObjects      int `json:"missing_objects"`
	EmptyObjects        int `json:"empty_objects"`
	UnknownTables       int `json:"unknown_tables"`
	OperationalFailures int `json:"operational_failures"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	retentionTick := tickerChan(s.Config.RetentionInterval, s.Audit != nil && s.Config.AuditRetention > 0)
	integrityTick := tickerChan(s.Config.IntegrityInterval, s.ObjectStore != nil && len(s.TableObjects) > 0)
	defer retentionTick.stop()
	defer integrityTick.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retentionTick.c:
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "audit retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "audit retention cycle completed", slog.Any("summary", summary))
			}
		case <-integrityTick.c:
			summary, err := s.RunIntegrityCheckOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "integrity check failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil {
				s.Logger.InfoContext(ctx, "integrity check completed", slog.Any("summary", summary))
			}
		}
	}
}

// RunRetentionOnce deletes audit entries older than Config.AuditRetention.
func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.Audit == nil {
		return RetentionSummary{}, fmt.Errorf("audit pruner is required")
	}
	if s.Config.AuditRetention <= 0 {
		return RetentionSummary{}, fmt.Errorf("audit retention must be > 0")
	}

	summary := RetentionSummary{Cutoff: s.Clock().UTC().Add(-s.Config.AuditRetention)}
	deleted, err := s.Audit.Prune(ctx, summary.Cutoff)
	if err != nil {
		maintenanceRunsTotal.WithLabelValues(jobRetention, "failed").Inc()
		return summary, err
	}
	summary.EntriesDeleted = deleted
	auditEntriesPrunedTotal.Add(float64(deleted))
	maintenanceRunsTotal.WithLabelValues(jobRetention, "completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce verifies that every configured table is known to the
// schema catalog and that each of its objects exists and is non-empty.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context) (IntegritySummary, error) {
	s.ensureDefaults()
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	var catalog *schema.Catalog
	if s.Catalogs != nil {
		loaded, err := s.Catalogs.Catalog(ctx)
		if err != nil {
			maintenanceRunsTotal.WithLabelValues(jobIntegrity, "failed").Inc()
			return IntegritySummary{}, fmt.Errorf("load schema catalog: %w", err)
		}
		catalog = loaded
	}

	summary := IntegritySummary{}
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(issue string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, issue)
		}
	}

	names := make([]string, 0, len(s.TableObjects))
	for name := range s.TableObjects {
		names = append(names, name)
	}
	sort.Strings(names)

	checked := map[string]struct{}{}
	for _, name := range names {
		summary.TablesScanned++
		if catalog != nil {
			if _, ok := catalog.Table(name); !ok {
				summary.UnknownTables++
				addIssue(fmt.Sprintf("table %s is not in the schema catalog", name))
			}
		}
		for _, key := range s.TableObjects[name] {
			if _, seen := checked[key]; seen {
				continue
			}
			checked[key] = struct{}{}
			summary.ObjectsChecked++

			info, err := s.ObjectStore.Stat(ctx, key)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					summary.MissingObjects++
					addIssue(fmt.Sprintf("table %s missing object %s", name, key))
					continue
				}
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("table %s stat object %s: %v", name, key, err))
				continue
			}
			if info.Size == 0 {
				summary.EmptyObjects++
				addIssue(fmt.Sprintf("table %s object %s is empty", name, key))
			}
		}
	}

	integrityObjectsCheckedTotal.Add(float64(summary.ObjectsChecked))
	if issueCount > 0 {
		integrityIssuesTotal.Add(float64(issueCount))
		maintenanceRunsTotal.WithLabelValues(jobIntegrity, "failed").Inc()
		if extra := issueCount - len(issueSamples); extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(issueSamples, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(issueSamples, "; "))
	}
	maintenanceRunsTotal.WithLabelValues(jobIntegrity, "completed").Inc()
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
}

type ticker struct {
	c <-chan time.Time
	t *time.Ticker
}

// tickerChan returns a ticker that never fires when the job is disabled.
func tickerChan(interval time.Duration, enabled bool) ticker {
	if !enabled || interval <= 0 {
		return ticker{}
	}
	t := time.NewTicker(interval)
	return ticker{c: t.C, t: t}
}

func (t ticker) stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
