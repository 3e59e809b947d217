package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banksec/backend/internal/models"
)

const ReasonAmountThreshold = "amount exceeds threshold"

// HTTPRiskScorer asks the fraud model service for a verdict.
type HTTPRiskScorer struct {
	url    string
	client *http.Client
}

func NewHTTPRiskScorer(url string, timeout time.Duration) *HTTPRiskScorer {
	return &HTTPRiskScorer{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type riskRequest struct {
	Amount int64 `json:"amount"`
}

type riskResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

func (s *HTTPRiskScorer) Score(ctx context.Context, amount int64) (models.RiskVerdict, error) {
	body, err := json.Marshal(riskRequest{Amount: amount})
	if err != nil {
		return models.RiskVerdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return models.RiskVerdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.RiskVerdict{}, fmt.Errorf("risk service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.RiskVerdict{}, fmt.Errorf("risk service returned status %d", resp.StatusCode)
	}

	var out riskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RiskVerdict{}, fmt.Errorf("invalid risk response: %w", err)
	}

	verdict := strings.ToUpper(strings.TrimSpace(out.Result))
	if verdict == "SAFE" {
		verdict = models.VerdictOK
	}
	return models.RiskVerdict{Verdict: verdict, Reason: out.Message}, nil
}

// ThresholdScorer flags any amount above a fixed limit.
type ThresholdScorer struct {
	Threshold int64
}

func (s ThresholdScorer) Score(ctx context.Context, amount int64) (models.RiskVerdict, error) {
	if amount > s.Threshold {
		return models.RiskVerdict{Verdict: models.VerdictFraud, Reason: ReasonAmountThreshold}, nil
	}
	return models.RiskVerdict{Verdict: models.VerdictOK}, nil
}
