package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/echoself-ai/echoself/internal/domain"
)

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockGenerator is a mock implementation of Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockReranker is a mock implementation of Reranker
type MockReranker struct {
	mock.Mock
}

func (m *MockReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	args := m.Called(ctx, query, documents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

// MockVectorSearcher is a mock implementation of VectorSearcher
type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) SearchNamespace(ctx context.Context, namespace string, vector []float32, topK int) ([]*VectorMatch, error) {
	args := m.Called(ctx, namespace, vector, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*VectorMatch), args.Error(1)
}

// MockVerifiedAnswerStore is a mock implementation of VerifiedAnswerStore
type MockVerifiedAnswerStore struct {
	mock.Mock
}

func (m *MockVerifiedAnswerStore) FindByNormalizedQuestion(ctx context.Context, twinID, normalized string) (*domain.VerifiedAnswer, error) {
	args := m.Called(ctx, twinID, normalized)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerifiedAnswer), args.Error(1)
}

func (m *MockVerifiedAnswerStore) FindNearestQuestion(ctx context.Context, twinID string, embedding []float32) (*domain.VerifiedAnswer, float32, error) {
	args := m.Called(ctx, twinID, embedding)
	if args.Get(0) == nil {
		return nil, float32(args.Get(1).(float64)), args.Error(2)
	}
	return args.Get(0).(*domain.VerifiedAnswer), float32(args.Get(1).(float64)), args.Error(2)
}

// MockTwinStore is a mock implementation of TwinStore
type MockTwinStore struct {
	mock.Mock
}

func (m *MockTwinStore) GetOwnerRef(ctx context.Context, twinID string) (string, error) {
	args := m.Called(ctx, twinID)
	return args.String(0), args.Error(1)
}

// MockRetrievalLogRepository is a mock implementation of RetrievalLogRepository
type MockRetrievalLogRepository struct {
	mock.Mock
}

func (m *MockRetrievalLogRepository) CreateRetrievalLog(ctx context.Context, entry RetrievalLogEntry) (string, error) {
	args := m.Called(ctx, entry)
	return args.String(0), args.Error(1)
}
