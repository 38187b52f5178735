package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/duoload/pkg/vocab"
)

// cardsOperation is the GraphQL operation name used for card listing.
const cardsOperation = "CardListQuery"

const cardsQuery = `query CardListQuery($deckId: ID!, $first: Int!, $cursor: String) {
  node(id: $deckId) {
    __typename
    ... on Deck {
      cards(first: $first, after: $cursor) {
        edges {
          node {
            id
            front
            back
            hint
            knownCount
          }
          cursor
        }
        pageInfo {
          endCursor
          hasNextPage
        }
      }
    }
    id
  }
}`

// cardsRequest is the POST body of a card listing request.
type cardsRequest struct {
	OperationName string         `json:"operationName"`
	Variables     cardsVariables `json:"variables"`
	Query         string         `json:"query"`
}

type cardsVariables struct {
	DeckID string  `json:"deckId"`
	First  int     `json:"first"`
	Cursor *string `json:"cursor"`
}

func newCardsRequest(deckID string, first int, cursor *string) cardsRequest {
	return cardsRequest{
		OperationName: cardsOperation,
		Variables: cardsVariables{
			DeckID: deckID,
			First:  first,
			Cursor: cursor,
		},
		Query: cardsQuery,
	}
}

type cardsResponse struct {
	Data   *cardsData     `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type cardsData struct {
	Node *deckNode `json:"node"`
}

type deckNode struct {
	ID    string          `json:"id"`
	Cards *cardConnection `json:"cards"`
}

type cardConnection struct {
	Edges    []cardEdge `json:"edges"`
	PageInfo pageInfo   `json:"pageInfo"`
}

type cardEdge struct {
	Node   card   `json:"node"`
	Cursor string `json:"cursor"`
}

type pageInfo struct {
	EndCursor   *string `json:"endCursor"`
	HasNextPage bool    `json:"hasNextPage"`
}

type card struct {
	ID         string  `json:"id"`
	Front      string  `json:"front"`
	Back       string  `json:"back"`
	Hint       *string `json:"hint"`
	KnownCount int     `json:"knownCount"`
}

func (c card) toRecord() vocab.Record {
	hint := ""
	if c.Hint != nil {
		hint = *c.Hint
	}
	return vocab.NewRecord(c.Front, c.Back, hint, vocab.StatusFromKnownCount(c.KnownCount))
}

// decodeCards decodes a 200 response body. GraphQL reports errors inside a
// successful HTTP response, so "not found" is recognised here as well.
func decodeCards(body []byte) (*cardConnection, error) {
	var resp cardsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &attemptError{class: ErrorClassParse, err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if strings.Contains(strings.ToLower(e.Message), "not found") {
				return nil, &attemptError{class: ErrorClassNotFound, err: fmt.Errorf("%w: %s", ErrDeckNotFound, e.Message)}
			}
			messages = append(messages, e.Message)
		}
		return nil, &attemptError{class: ErrorClassClient, err: fmt.Errorf("graphql: %s", strings.Join(messages, "; "))}
	}

	if resp.Data == nil {
		return nil, &attemptError{class: ErrorClassParse, err: fmt.Errorf("%w: missing data", ErrMalformedResponse)}
	}
	if resp.Data.Node == nil {
		return nil, &attemptError{class: ErrorClassNotFound, err: ErrDeckNotFound}
	}
	if resp.Data.Node.Cards == nil {
		return nil, &attemptError{class: ErrorClassParse, err: fmt.Errorf("%w: node has no cards", ErrMalformedResponse)}
	}
	return resp.Data.Node.Cards, nil
}
