package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// New project request

type NewProjectReq struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	BudgetMin   decimal.Decimal `json:"budgetMin"`
	BudgetMax   decimal.Decimal `json:"budgetMax"`
	Deadline    time.Time       `json:"deadline"`
	Skills      []string        `json:"requiredSkills"`
}

func ParseNewProjectReq(data []byte) (*NewProjectReq, error) {
	t := &NewProjectReq{}

	if err := decodeStrict(data, t); err != nil {
		return nil, err
	}

	if len(t.Title) == 0 {
		return nil, errors.New("field 'title' is required")
	}
	if err := checkLengthLimit(t.Title, "title", 200); err != nil {
		return nil, err
	}
	if err := checkLengthLimit(t.Description, "description", 10000); err != nil {
		return nil, err
	}
	if t.Deadline.IsZero() {
		return nil, errors.New("field 'deadline' is required")
	}

	return t, nil
}

// Edit project request

type ProjectChangeReq struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	BudgetMin   *decimal.Decimal `json:"budgetMin"`
	BudgetMax   *decimal.Decimal `json:"budgetMax"`
	Deadline    *time.Time       `json:"deadline"`
	Skills      *[]string        `json:"requiredSkills"`
}

func ParseProjectChangeReq(data []byte) (*ProjectChangeReq, error) {
	t := &ProjectChangeReq{}

	if err := decodeStrict(data, t); err != nil {
		return nil, err
	}

	if t.Title == nil && t.Description == nil && t.BudgetMin == nil && t.BudgetMax == nil && t.Deadline == nil && t.Skills == nil {
		return nil, errors.New("no changes supplied")
	}
	if t.Title != nil {
		if err := checkLengthLimit(*t.Title, "title", 200); err != nil {
			return nil, err
		}
	}
	if t.Description != nil {
		if err := checkLengthLimit(*t.Description, "description", 10000); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// New bid request

type NewBidReq struct {
	Amount       decimal.Decimal `json:"amount"`
	Proposal     string          `json:"proposal"`
	DeliveryTime int             `json:"deliveryTime"`
}

func ParseNewBidReq(data []byte) (*NewBidReq, error) {
	t := &NewBidReq{}

	if err := decodeStrict(data, t); err != nil {
		return nil, err
	}

	if len(t.Proposal) == 0 {
		return nil, errors.New("field 'proposal' is required")
	}

	return t, nil
}

// Accept bid request

type AcceptBidReq struct {
	BidId string `json:"bid_id"`
}

func ParseAcceptBidReq(data []byte) (*AcceptBidReq, error) {
	t := &AcceptBidReq{}

	if err := json.Unmarshal(data, t); err != nil {
		return nil, err
	}

	if len(t.BidId) == 0 {
		return nil, errors.New("field 'bid_id' is required")
	}
	if err := checkLengthLimit(t.BidId, "bid_id", 100); err != nil {
		return nil, err
	}

	return t, nil
}

// New milestone request

type NewMilestoneReq struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"dueDate"`
}

func ParseNewMilestoneReq(data []byte) (*NewMilestoneReq, error) {
	t := &NewMilestoneReq{}

	if err := decodeStrict(data, t); err != nil {
		return nil, err
	}

	if len(t.Title) == 0 {
		return nil, errors.New("field 'title' is required")
	}
	if err := checkLengthLimit(t.Title, "title", 200); err != nil {
		return nil, err
	}
	if t.DueDate.IsZero() {
		return nil, errors.New("field 'dueDate' is required")
	}

	return t, nil
}

// Edit milestone request

type MilestoneChangeReq struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	DueDate     *time.Time       `json:"dueDate"`
}

func ParseMilestoneChangeReq(data []byte) (*MilestoneChangeReq, error) {
	t := &MilestoneChangeReq{}

	if err := decodeStrict(data, t); err != nil {
		return nil, err
	}

	if t.Title == nil && t.Description == nil && t.Amount == nil && t.DueDate == nil {
		return nil, errors.New("no changes supplied")
	}
	if t.Title != nil {
		if err := checkLengthLimit(*t.Title, "title", 200); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Service

// decodeStrict decodes data into dst and rejects unknown fields.
func decodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("could not parse json: %w", err)
	}
	return nil
}

func checkLengthLimit(str, fieldName string, limit int) error {
	if n := len([]rune(str)); n > limit {
		return fmt.Errorf("field '%s' exceeds length limit: %d / %d", fieldName, n, limit)
	}
	return nil
}
