package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/casava/domain/entities"
	"github.com/satriahrh/casava/domain/repositories"
	"github.com/satriahrh/casava/internal/media"
)

// DiseaseContextSink receives the latest diagnosis for use in later chat turns
type DiseaseContextSink interface {
	SetDiseaseContext(dc *entities.DiseaseContext)
}

// DiagnosisService classifies cassava leaf photos
type DiagnosisService struct {
	backend repositories.AdvisoryBackend
	capture *media.Capture
	sink    DiseaseContextSink
	logger  *zap.Logger
}

// NewDiagnosisService creates a diagnosis service. sink may be nil.
func NewDiagnosisService(backend repositories.AdvisoryBackend, capture *media.Capture, sink DiseaseContextSink, logger *zap.Logger) *DiagnosisService {
	return &DiagnosisService{
		backend: backend,
		capture: capture,
		sink:    sink,
		logger:  logger,
	}
}

// Diagnose validates the photo, classifies it and fills in missing advice.
// With attach set, the result becomes the conversation's disease context.
func (s *DiagnosisService) Diagnose(ctx context.Context, file entities.FileInput, language string, attach bool) (*entities.Classification, error) {
	image, err := s.capture.AcceptFile(file, media.KindImage)
	if err != nil {
		return nil, err
	}

	result, err := s.backend.ClassifyImage(ctx, image, language)
	if err != nil {
		s.logger.Warn("Classification failed", zap.String("file", file.Name), zap.Error(err))
		return nil, err
	}

	result.Enrich()

	s.logger.Info("Leaf classified",
		zap.String("label", result.Label),
		zap.Float64("confidence", result.Confidence),
		zap.String("level", string(result.Level)))

	if attach && s.sink != nil {
		s.sink.SetDiseaseContext(entities.ContextFrom(result))
	}
	return result, nil
}
