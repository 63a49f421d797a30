// Package fhir is the thin adapter over the remote clinical store. It covers
// exactly the collaborator surface the checks need: posting Library/Measure
// resources, evaluating measures, resolving subject lists, and fetching
// paginated resource sets. All transport failures wrap ErrRemote so callers
// can treat them as per-check, non-fatal errors.
package fhir

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// ErrRemote marks any transport, HTTP, or decoding failure talking to the
// FHIR server.
var ErrRemote = errors.New("fhir: remote error")

const defaultPageSize = 100

// Client talks to one FHIR base URL.
type Client struct {
	base       string
	http       *http.Client
	pageSize   int
	newBackOff func() backoff.BackOff
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient substitutes the transport, e.g. one with a test server or a
// tighter timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithPageSize overrides the _count page size used by FetchAll.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithBackOff substitutes the per-request retry policy; tests use a constant
// backoff so retries do not slow the suite down.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = f }
}

// NewClient builds a client for the given base URL. Transient server errors
// are retried a bounded number of times with exponential backoff.
func NewClient(base string, opts ...Option) *Client {
	c := &Client{
		base:     strings.TrimRight(base, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		pageSize: defaultPageSize,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			return backoff.WithMaxRetries(b, 3)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createdResource struct {
	ID string `json:"id"`
}

// CreateMeasure posts the CQL source as a Library plus a cohort Measure
// referencing it and returns the server-assigned Measure id.
func (c *Client) CreateMeasure(ctx context.Context, cqlSource []byte, subjectType string) (string, error) {
	libraryURN := "urn:uuid:" + uuid.NewString()
	measureURN := "urn:uuid:" + uuid.NewString()
	encoded := base64.StdEncoding.EncodeToString(cqlSource)

	if _, err := c.PostResource(ctx, "Library", libraryResource(libraryURN, encoded)); err != nil {
		return "", err
	}
	created, err := c.PostResource(ctx, "Measure", measureResource(measureURN, libraryURN, subjectType))
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("create measure: %w: response missing id", ErrRemote)
	}
	return created.ID, nil
}

// PostResource creates a resource of the given type and returns the decoded
// creation response.
func (c *Client) PostResource(ctx context.Context, resourceType string, body any) (*createdResource, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("post %s: encode: %w", resourceType, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+resourceType, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("post %s: %w: %w", resourceType, ErrRemote, err)
	}
	req.Header.Set("Content-Type", "application/fhir+json")

	var created createdResource
	if err := c.doJSON(req, &created); err != nil {
		return nil, fmt.Errorf("post %s: %w", resourceType, err)
	}
	return &created, nil
}

// EvaluateMeasure runs $evaluate-measure for a population count.
func (c *Client) EvaluateMeasure(ctx context.Context, measureID string) (MeasureResult, error) {
	u := fmt.Sprintf("%s/Measure/%s/$evaluate-measure?periodStart=2000&periodEnd=2030", c.base, url.PathEscape(measureID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return MeasureResult{}, fmt.Errorf("evaluate measure: %w: %w", ErrRemote, err)
	}

	var report measureReport
	if err := c.doJSON(req, &report); err != nil {
		return MeasureResult{}, fmt.Errorf("evaluate measure %s: %w", measureID, err)
	}
	return report.result(), nil
}

// EvaluateMeasureList runs $evaluate-measure in subject-list mode, so the
// report additionally references a List of matching subjects.
func (c *Client) EvaluateMeasureList(ctx context.Context, measureID string) (MeasureResult, error) {
	params := map[string]any{
		"resourceType": "Parameters",
		"parameter": []map[string]any{
			{"name": "periodStart", "valueDate": "2000"},
			{"name": "periodEnd", "valueDate": "2030"},
			{"name": "reportType", "valueCode": "subject-list"},
		},
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return MeasureResult{}, fmt.Errorf("evaluate measure list: encode: %w", err)
	}
	u := fmt.Sprintf("%s/Measure/%s/$evaluate-measure", c.base, url.PathEscape(measureID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return MeasureResult{}, fmt.Errorf("evaluate measure list: %w: %w", ErrRemote, err)
	}
	req.Header.Set("Content-Type", "application/fhir+json")

	var report measureReport
	if err := c.doJSON(req, &report); err != nil {
		return MeasureResult{}, fmt.Errorf("evaluate measure list %s: %w", measureID, err)
	}
	return report.result(), nil
}

// ResolveSubjects dereferences a subject-list reference ("List/...") into the
// ordered subject identifiers it contains.
func (c *Client) ResolveSubjects(ctx context.Context, reference string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/"+strings.TrimLeft(reference, "/"), nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w: %w", reference, ErrRemote, err)
	}

	var list struct {
		Entry []struct {
			Item Reference `json:"item"`
		} `json:"entry"`
	}
	if err := c.doJSON(req, &list); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", reference, err)
	}

	subjects := make([]string, 0, len(list.Entry))
	for _, e := range list.Entry {
		if e.Item.Reference != "" {
			subjects = append(subjects, e.Item.Reference)
		}
	}
	return subjects, nil
}

// FetchAll retrieves every resource of the given type, restricted to the
// requested elements, following pagination until the last page. Each page
// request retries transient server errors with backoff; 4xx responses are
// permanent.
func (c *Client) FetchAll(ctx context.Context, resourceType string, elements []string) ([]json.RawMessage, error) {
	next := fmt.Sprintf("%s/%s?_count=%d&_elements=%s", c.base, resourceType, c.pageSize, strings.Join(elements, ","))

	var resources []json.RawMessage
	for next != "" {
		bundle, err := c.getBundle(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", resourceType, err)
		}
		for _, e := range bundle.Entry {
			resources = append(resources, e.Resource)
		}
		next = bundle.NextLink()
	}
	return resources, nil
}

func (c *Client) getBundle(ctx context.Context, pageURL string) (*Bundle, error) {
	var bundle Bundle
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}

		var page Bundle
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return backoff.Permanent(fmt.Errorf("decode bundle: %w", err))
		}
		bundle = page
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemote, err)
	}
	return &bundle, nil
}

// doJSON performs a single non-retried request and decodes a JSON body.
// Mutating calls (resource creation, measure evaluation) are not retried:
// replaying them could release additional information or create duplicates.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: unexpected status %d", ErrRemote, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrRemote, err)
	}
	return nil
}
