package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/extract"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(llm.Completion), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, content []byte, contentType string) (extract.TextExtractionResult, error) {
	args := m.Called(ctx, content, contentType)
	return args.Get(0).(extract.TextExtractionResult), args.Error(1)
}

type mockJobRepo struct {
	mock.Mock
}

func (m *mockJobRepo) Start(ctx context.Context, in repository.JobStart) (*entity.ExtractJob, error) {
	args := m.Called(ctx, in)
	job, _ := args.Get(0).(*entity.ExtractJob)
	return job, args.Error(1)
}

func (m *mockJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, method, outcome string) error {
	return m.Called(ctx, jobID, method, outcome).Error(0)
}

func (m *mockJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, method, message string) error {
	return m.Called(ctx, jobID, method, message).Error(0)
}

func (m *mockJobRepo) ListRecent(ctx context.Context, limit int) ([]entity.ExtractJob, error) {
	args := m.Called(ctx, limit)
	jobs, _ := args.Get(0).([]entity.ExtractJob)
	return jobs, args.Error(1)
}
