package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain"
	"github.com/satriahrh/casava/domain/repositories"
)

// PartStatus is the outcome of one probe
type PartStatus struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// SystemStatus aggregates the backend probes. A failing probe is reported
// in its own part and never fails the whole report.
type SystemStatus struct {
	Health         *repositories.HealthStatus    `json:"health,omitempty"`
	HealthError    *PartStatus                   `json:"health_error,omitempty"`
	Languages      *repositories.LanguageSupport `json:"languages,omitempty"`
	LanguagesError *PartStatus                   `json:"languages_error,omitempty"`
	Classifier     PartStatus                    `json:"classifier"`
	API            PartStatus                    `json:"api"`
	CheckedAt      time.Time                     `json:"checked_at"`
}

// Healthy reports whether every probe succeeded and the backend says it is healthy
func (s *SystemStatus) Healthy() bool {
	return s.HealthError == nil && s.Health.Healthy() && s.Classifier.Error == "" && s.API.Error == ""
}

// SystemService reports backend health
type SystemService struct {
	backend repositories.AdvisoryBackend
	logger  *zap.Logger
}

// NewSystemService creates a system service
func NewSystemService(backend repositories.AdvisoryBackend, logger *zap.Logger) *SystemService {
	return &SystemService{backend: backend, logger: logger}
}

// Status probes the backend concurrently
func (s *SystemService) Status(ctx context.Context) *SystemStatus {
	status := &SystemStatus{CheckedAt: time.Now()}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		health, err := s.backend.Health(ctx)
		if err != nil {
			status.HealthError = partError(err)
			return
		}
		status.Health = health
	}()

	go func() {
		defer wg.Done()
		languages, err := s.backend.SupportedLanguages(ctx)
		if err != nil {
			status.LanguagesError = partError(err)
			return
		}
		status.Languages = languages
	}()

	go func() {
		defer wg.Done()
		status.Classifier = probe(s.backend.ClassificationHealth(ctx))
	}()

	go func() {
		defer wg.Done()
		status.API = probe(s.backend.RootHealth(ctx))
	}()

	wg.Wait()

	s.logger.Info("System status checked", zap.Bool("healthy", status.Healthy()))
	return status
}

func probe(status string, err error) PartStatus {
	if err != nil {
		return *partError(err)
	}
	return PartStatus{Status: status}
}

func partError(err error) *PartStatus {
	return &PartStatus{Error: domain.UserMessage(err), Kind: domain.Kind(err)}
}
