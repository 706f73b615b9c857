package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/echoself-ai/echoself/internal/domain"
	"github.com/echoself-ai/echoself/internal/service"
)

type MockRetrievalService struct {
	mock.Mock
}

func (m *MockRetrievalService) Retrieve(ctx context.Context, input service.RetrieveInput) (*service.RetrievalResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RetrievalResult), args.Error(1)
}

func postRetrieve(t *testing.T, handler *RetrieveHandler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.Retrieve(rec, req)
	return rec
}

func TestRetrieveHandler_Retrieve(t *testing.T) {
	t.Run("returns contexts with scores", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: true, EnableRerank: true})

		result := &service.RetrievalResult{
			Contexts: []*service.RetrievedContext{
				{
					Text:        "We write checks from $250k.",
					SourceID:    "doc-1",
					Namespace:   "owner-acme.twin-t1",
					RawScore:    0.88,
					FusedScore:  0.016,
					FusedRank:   1,
					RerankScore: 0.91,
					HasRerank:   true,
				},
			},
			Confidence: 0.91,
		}
		mockSvc.On("Retrieve", mock.Anything, mock.Anything).Return(result, nil)

		rec := postRetrieve(t, handler, RetrieveRequest{
			TwinID:   "t1",
			Query:    "what's your min check size",
			GroupIDs: []string{"investors"},
		})

		require.Equal(t, http.StatusOK, rec.Code)

		var envelope struct {
			Data RetrieveResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
		require.Len(t, envelope.Data.Contexts, 1)
		assert.Equal(t, "doc-1", envelope.Data.Contexts[0].SourceID)
		assert.InDelta(t, 0.91, envelope.Data.Contexts[0].RerankScore, 1e-9)
		assert.InDelta(t, 0.91, envelope.Data.Confidence, 1e-9)
		assert.Nil(t, envelope.Data.VerifiedAnswer)
	})

	t.Run("returns verified answer when matched", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: true, EnableRerank: true})

		result := &service.RetrievalResult{
			Contexts:   []*service.RetrievedContext{},
			Confidence: 0.99,
			VerifiedAnswer: &domain.VerifiedAnswer{
				ID:           "va-1",
				QuestionText: "What is your minimum check size?",
				AnswerText:   "Our minimum check size is $250k.",
				Confidence:   0.99,
			},
		}
		mockSvc.On("Retrieve", mock.Anything, mock.Anything).Return(result, nil)

		rec := postRetrieve(t, handler, RetrieveRequest{TwinID: "t1", Query: "min check size?"})

		require.Equal(t, http.StatusOK, rec.Code)

		var envelope struct {
			Data RetrieveResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
		require.NotNil(t, envelope.Data.VerifiedAnswer)
		assert.Equal(t, "Our minimum check size is $250k.", envelope.Data.VerifiedAnswer.Answer)
		assert.Empty(t, envelope.Data.Contexts)
	})

	t.Run("unset options fall back to the configured defaults", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: true, EnableRerank: true})

		mockSvc.On("Retrieve", mock.Anything, mock.MatchedBy(func(input service.RetrieveInput) bool {
			return input.Options.DualRead && input.Options.EnableRerank
		})).Return(&service.RetrievalResult{Contexts: []*service.RetrievedContext{}}, nil)

		rec := postRetrieve(t, handler, RetrieveRequest{TwinID: "t1", Query: "q"})

		require.Equal(t, http.StatusOK, rec.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("disabled defaults reach the service when options are unset", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: false, EnableRerank: false})

		mockSvc.On("Retrieve", mock.Anything, mock.MatchedBy(func(input service.RetrieveInput) bool {
			return !input.Options.DualRead && !input.Options.EnableRerank
		})).Return(&service.RetrievalResult{Contexts: []*service.RetrievedContext{}}, nil)

		rec := postRetrieve(t, handler, RetrieveRequest{TwinID: "t1", Query: "q"})

		require.Equal(t, http.StatusOK, rec.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("explicit true overrides disabled defaults", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: false, EnableRerank: false})

		on := true
		mockSvc.On("Retrieve", mock.Anything, mock.MatchedBy(func(input service.RetrieveInput) bool {
			return input.Options.DualRead && input.Options.EnableRerank
		})).Return(&service.RetrievalResult{Contexts: []*service.RetrievedContext{}}, nil)

		rec := postRetrieve(t, handler, RetrieveRequest{
			TwinID:       "t1",
			Query:        "q",
			DualRead:     &on,
			EnableRerank: &on,
		})

		require.Equal(t, http.StatusOK, rec.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("explicit false overrides the defaults", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: true, EnableRerank: true})

		off := false
		mockSvc.On("Retrieve", mock.Anything, mock.MatchedBy(func(input service.RetrieveInput) bool {
			return !input.Options.DualRead && !input.Options.EnableRerank
		})).Return(&service.RetrievalResult{Contexts: []*service.RetrievedContext{}}, nil)

		rec := postRetrieve(t, handler, RetrieveRequest{
			TwinID:       "t1",
			Query:        "q",
			DualRead:     &off,
			EnableRerank: &off,
		})

		require.Equal(t, http.StatusOK, rec.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing twin id is a 400 with a code", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: true, EnableRerank: true})

		rec := postRetrieve(t, handler, RetrieveRequest{Query: "q"})

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
		assert.Equal(t, domain.ErrCodeValidation, errResp.Code)
		mockSvc.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything)
	})

	t.Run("blank query is a 400", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: true, EnableRerank: true})

		rec := postRetrieve(t, handler, RetrieveRequest{TwinID: "t1", Query: "  "})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: true, EnableRerank: true})

		req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		handler.Retrieve(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service errors map through the domain taxonomy", func(t *testing.T) {
		mockSvc := new(MockRetrievalService)
		handler := NewRetrieveHandler(mockSvc, RetrieveDefaults{DualRead: true, EnableRerank: true})

		mockSvc.On("Retrieve", mock.Anything, mock.Anything).
			Return(nil, domain.ErrDimensionMismatch)

		rec := postRetrieve(t, handler, RetrieveRequest{TwinID: "t1", Query: "q"})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var errResp struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
		assert.Equal(t, domain.ErrCodeDimensionMismatch, errResp.Code)
	})
}
