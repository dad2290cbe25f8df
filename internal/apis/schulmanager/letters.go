package schulmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"schulmanager-online/internal/snapshot"
)

type rawStudentStatus struct {
	ReadTimestamp any `json:"readTimestamp"`
}

type rawLetter struct {
	ID              any                 `json:"id"`
	Title           *string             `json:"title"`
	CreatedAt       *string             `json:"createdAt"`
	StudentStatuses *[]rawStudentStatus `json:"studentStatuses"`
}

type rawLettersResult struct {
	Data *[]rawLetter `json:"data"`
}

type rawLettersResponse struct {
	Results []rawLettersResult `json:"results"`
}

var (
	errMissingId       = errors.New("letter without id")
	errNoStatusEntries = errors.New("letter with empty studentStatuses")
)

// Letters fetches the letters (Elternbriefe) of the account.
func (c *Client) Letters(ctx context.Context) ([]snapshot.Letter, error) {
	body, err := c.post(ctx, "letters", "get-letters")
	if err != nil {
		return nil, err
	}
	letters, err := parseLetters(body)
	if err != nil {
		c.tel.ReportBroken(report_client_letters, err)
		return nil, apiError(0, fmt.Errorf("failed to parse letters response: %w", err))
	}
	return letters, nil
}

func parseLetters(body []byte) ([]snapshot.Letter, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var res rawLettersResponse
	err := decoder.Decode(&res)
	if err != nil {
		return nil, err
	}
	if len(res.Results) == 0 || res.Results[0].Data == nil {
		return []snapshot.Letter{}, nil
	}

	raw := *res.Results[0].Data
	letters := make([]snapshot.Letter, 0, len(raw))
	for _, r := range raw {
		letter, err := r.toLetter()
		if err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

func (r rawLetter) toLetter() (snapshot.Letter, error) {
	var letter snapshot.Letter

	switch id := r.ID.(type) {
	case string:
		letter.ID = id
	case json.Number:
		letter.ID = id.String()
	case nil:
		return letter, errMissingId
	default:
		return letter, fmt.Errorf("letter id has unexpected type %T", id)
	}
	if r.Title != nil {
		letter.Title = *r.Title
	}
	if r.CreatedAt != nil {
		letter.CreatedAt = *r.CreatedAt
	}

	if r.StudentStatuses != nil {
		statuses := *r.StudentStatuses
		if len(statuses) == 0 {
			return letter, errNoStatusEntries
		}
		letter.Read = truthy(statuses[0].ReadTimestamp)
	}
	return letter, nil
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case json.Number:
		return v.String() != "0"
	default:
		return true
	}
}
