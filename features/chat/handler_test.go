package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docuchat/internal/retrieval"
)

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, documentID, question string) *retrieval.Answer {
	args := m.Called(ctx, documentID, question)
	return args.Get(0).(*retrieval.Answer)
}

func askRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/chat", strings.NewReader(body))
	req.SetPathValue("id", "doc-1")
	return req
}

func TestAsk_Success(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	answerer.On("Answer", mock.Anything, "doc-1", "What is the refund policy?").Return(&retrieval.Answer{
		Outcome: retrieval.OutcomeAnswered,
		Message: "Refunds are issued within 30 days.",
		Sources: []string{"Refunds are issued within 30 days of purchase."},
	})

	rec := httptest.NewRecorder()
	h.Ask(rec, askRequest(`{"question":"What is the refund policy?"}`))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data retrieval.Answer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, retrieval.OutcomeAnswered, resp.Data.Outcome)
	assert.Len(t, resp.Data.Sources, 1)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	rec := httptest.NewRecorder()
	h.Ask(rec, askRequest(`{"question":"   "}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Question is required")
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)
}

func TestAsk_InvalidJSON(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	rec := httptest.NewRecorder()
	h.Ask(rec, askRequest(`{not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)
}

func TestAsk_TrimsQuestion(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	answerer.On("Answer", mock.Anything, "doc-1", "hello").Return(&retrieval.Answer{
		Outcome: retrieval.OutcomeNoMatches,
		Message: "I couldn't find any relevant information in the document to answer your question.",
		Sources: []string{},
	})

	rec := httptest.NewRecorder()
	h.Ask(rec, askRequest(`{"question":"  hello  "}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	answerer.AssertExpectations(t)
}

func TestAsk_NotFoundOutcomeMapsTo404(t *testing.T) {
	answerer := new(MockAnswerer)
	h := NewHandler(answerer)

	answerer.On("Answer", mock.Anything, "doc-1", "anything").Return(&retrieval.Answer{
		Outcome: retrieval.OutcomeNotFound,
		Message: "I couldn't find that document. It may have been deleted.",
		Sources: []string{},
	})

	rec := httptest.NewRecorder()
	h.Ask(rec, askRequest(`{"question":"anything"}`))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp struct {
		Data retrieval.Answer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, retrieval.OutcomeNotFound, resp.Data.Outcome)
}
