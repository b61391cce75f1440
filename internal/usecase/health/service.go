package health

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/liquidgraph/kgraph/internal/engine"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results and graph statistics.
type Report struct {
	Status    Status
	Checks    map[string]CheckResult
	Graph     engine.Stats
	Timestamp time.Time
}

// Service coordinates health checks.
type Service struct {
	engine    EngineChecker
	db        DBPinger
	embedding EmbeddingChecker
	workdir   string
}

// New creates a Service. db and embedding can be nil when the
// deployment does not use them.
func New(eng EngineChecker, db DBPinger, embedding EmbeddingChecker, workdir string) *Service {
	return &Service{engine: eng, db: db, embedding: embedding, workdir: workdir}
}

// Check runs health checks against all components. The endpoint always
// answers 200; a failing component only degrades the reported status.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.engine.Ready(ctx); err != nil {
		checks["engine"] = CheckError
	} else {
		checks["engine"] = CheckOK
	}

	checks["workdir"] = s.checkWorkdir()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			checks["database"] = CheckError
		} else {
			checks["database"] = CheckOK
		}
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
		} else {
			checks["embedding"] = CheckOK
		}
	}

	report := Report{
		Status:    Healthy,
		Checks:    checks,
		Timestamp: time.Now().UTC(),
	}
	for _, v := range checks {
		if v == CheckError {
			report.Status = Degraded
			break
		}
	}

	if stats, err := s.engine.Stats(ctx); err == nil {
		report.Graph = stats
	}
	return report
}

// checkWorkdir verifies the working directory exists and is writable.
func (s *Service) checkWorkdir() CheckResult {
	if s.workdir == "" {
		return CheckOK
	}
	probe := filepath.Join(s.workdir, ".healthprobe")
	f, err := os.Create(probe)
	if err != nil {
		return CheckError
	}
	f.Close()
	os.Remove(probe)
	return CheckOK
}
