// Package testutil provides testing utilities for duoload.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// GraphQLPath is the path the mock serves the GraphQL API on.
const GraphQLPath = "/graphql"

// MockCard is one card stored in the mock deck.
type MockCard struct {
	ID         string
	Front      string
	Back       string
	Hint       string
	KnownCount int
}

// MockResponse defines a canned response that overrides the deck contents.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockRequest is a decoded card listing request.
type MockRequest struct {
	OperationName string `json:"operationName"`
	Variables     struct {
		DeckID string  `json:"deckId"`
		First  int     `json:"first"`
		Cursor *string `json:"cursor"`
	} `json:"variables"`
	Query string `json:"query"`
}

// MockDuocards is a configurable mock Duocards GraphQL server for testing.
type MockDuocards struct {
	server *httptest.Server
	mu     sync.RWMutex
	deckID string
	pages  [][]MockCard
	queue  []MockResponse

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	Requests          []MockRequest
	RequestTimes      []time.Time
}

// NewMockDuocards creates a mock server holding pages for deckID.
func NewMockDuocards(deckID string, pages ...[]MockCard) *MockDuocards {
	mock := &MockDuocards{
		deckID: deckID,
		pages:  pages,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the GraphQL endpoint URL.
func (m *MockDuocards) URL() string {
	return m.server.URL + GraphQLPath
}

// Close shuts down the mock server.
func (m *MockDuocards) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockDuocards) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.Requests = nil
	m.RequestTimes = nil
}

// Enqueue makes the next len(resps) requests answer with resps, in order,
// before the deck contents are served again.
func (m *MockDuocards) Enqueue(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resps...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockDuocards) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequests returns a copy of the decoded requests.
func (m *MockDuocards) GetRequests() []MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockRequest(nil), m.Requests...)
}

// GetRequestTimes returns when each request arrived.
func (m *MockDuocards) GetRequestTimes() []time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Time(nil), m.RequestTimes...)
}

func (m *MockDuocards) handle(w http.ResponseWriter, r *http.Request) {
	var req MockRequest
	decodeErr := json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	m.Requests = append(m.Requests, req)
	m.RequestTimes = append(m.RequestTimes, time.Now())

	var canned *MockResponse
	if len(m.queue) > 0 {
		canned = &m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	if canned != nil {
		writeCanned(w, r, *canned)
		return
	}

	if r.Method != http.MethodPost || r.URL.Path != GraphQLPath {
		http.NotFound(w, r)
		return
	}
	if decodeErr != nil {
		http.Error(w, `{"errors":[{"message":"invalid request body"}]}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if req.Variables.DeckID != m.deckID {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"node":null}}`))
		return
	}

	index := 0
	if req.Variables.Cursor != nil {
		n, err := strconv.Atoi(strings.TrimPrefix(*req.Variables.Cursor, "cursor-"))
		if err != nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"errors":[{"message":"invalid cursor"}]}`))
			return
		}
		index = n
	}

	w.WriteHeader(http.StatusOK)
	w.Write(m.pageBody(index))
}

func (m *MockDuocards) pageBody(index int) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type node struct {
		ID         string  `json:"id"`
		Front      string  `json:"front"`
		Back       string  `json:"back"`
		Hint       *string `json:"hint"`
		KnownCount int     `json:"knownCount"`
		Typename   string  `json:"__typename"`
	}
	type edge struct {
		Node   node   `json:"node"`
		Cursor string `json:"cursor"`
	}

	edges := []edge{}
	if index < len(m.pages) {
		for i, c := range m.pages[index] {
			n := node{ID: c.ID, Front: c.Front, Back: c.Back, KnownCount: c.KnownCount, Typename: "Card"}
			if c.Hint != "" {
				hint := c.Hint
				n.Hint = &hint
			}
			edges = append(edges, edge{Node: n, Cursor: strconv.Itoa(index*1000 + i)})
		}
	}

	endCursor := fmt.Sprintf("cursor-%d", index+1)
	body := map[string]any{
		"data": map[string]any{
			"node": map[string]any{
				"__typename": "Deck",
				"id":         m.deckID,
				"cards": map[string]any{
					"edges": edges,
					"pageInfo": map[string]any{
						"endCursor":   endCursor,
						"hasNextPage": index+1 < len(m.pages),
					},
				},
			},
		},
	}

	data, _ := json.Marshal(body)
	return data
}

func writeCanned(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// GenerateCards builds n cards with distinct words prefix-1..prefix-n.
func GenerateCards(prefix string, n int) []MockCard {
	cards := make([]MockCard, 0, n)
	for i := 1; i <= n; i++ {
		cards = append(cards, MockCard{
			ID:    fmt.Sprintf("%s-id-%d", prefix, i),
			Front: fmt.Sprintf("%s-%d", prefix, i),
			Back:  fmt.Sprintf("%s-translation-%d", prefix, i),
		})
	}
	return cards
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
			"Retry-After":  "1",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "Not found"}`,
	}
}

// NewGraphQLNotFoundResponse creates a 200 response carrying a GraphQL "not found" error.
func NewGraphQLNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":{"node":null},"errors":[{"message":"Deck not found"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response that is not valid JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data": {"node": `,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewSlowResponse creates a response that stalls for delay before failing.
// Requests with a shorter client timeout observe it as a timeout.
func NewSlowResponse(delay time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusGatewayTimeout,
		Delay:      delay,
	}
}
