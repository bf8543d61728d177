package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/boddenberg/budget-coach-bfa/internal/domain"
	"github.com/boddenberg/budget-coach-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// SampleClient fetches generated sample transactions from the sample API.
type SampleClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewSampleClient creates a new SampleClient.
func NewSampleClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *SampleClient {
	return &SampleClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type sampleEnvelope struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// FetchSamples asks the sample API for count transactions spread over the
// last days days.
func (c *SampleClient) FetchSamples(ctx context.Context, userID string, count, days int) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "SampleClient.FetchSamples")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("count", count))

	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	q.Set("days", strconv.Itoa(days))
	endpoint := fmt.Sprintf("%s/v1/users/%s/sample-transactions?%s", c.baseURL, url.PathEscape(userID), q.Encode())

	result, err := c.cb.Execute(func() (any, error) {
		var env sampleEnvelope
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return resilience.Permanent(&domain.ErrNotFound{Resource: "sample transactions", ID: userID})
			}
			if err := statusError("samples", resp); err != nil {
				return err
			}
			return json.NewDecoder(resp.Body).Decode(&env)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return env.Transactions, nil
	})

	if err != nil {
		span.RecordError(err)
		return nil, wrapExternal("samples", err)
	}

	return result.([]domain.Transaction), nil
}
