package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL,
		WithPageSize(2),
		WithBackOff(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 3)
		}),
	)
	return c, srv
}

func TestCreateMeasure(t *testing.T) {
	var libraries, measures []map[string]any
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/fhir+json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/Library":
			libraries = append(libraries, body)
			fmt.Fprint(w, `{"id":"lib-1"}`)
		case "/Measure":
			measures = append(measures, body)
			fmt.Fprint(w, `{"id":"measure-1"}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	id, err := c.CreateMeasure(context.Background(), []byte("library x"), "Specimen")
	require.NoError(t, err)
	assert.Equal(t, "measure-1", id)

	require.Len(t, libraries, 1)
	require.Len(t, measures, 1)
	assert.Equal(t, "Library", libraries[0]["resourceType"])
	assert.Equal(t, "bGlicmFyeSB4", libraries[0]["content"].([]any)[0].(map[string]any)["data"])

	subject := measures[0]["subjectCodeableConcept"].(map[string]any)["coding"].([]any)[0].(map[string]any)
	assert.Equal(t, "Specimen", subject["code"])
}

func TestCreateMeasureMissingID(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))

	_, err := c.CreateMeasure(context.Background(), []byte("library x"), "Patient")
	assert.ErrorIs(t, err, ErrRemote)
}

func TestEvaluateMeasure(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/Measure/m1/$evaluate-measure", r.URL.Path)
		require.Equal(t, "2000", r.URL.Query().Get("periodStart"))
		require.Equal(t, "2030", r.URL.Query().Get("periodEnd"))
		fmt.Fprint(w, `{"group":[{"population":[{"count":17}]}]}`)
	}))

	res, err := c.EvaluateMeasure(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 17, res.Count)
	assert.Empty(t, res.SubjectListReference)
}

func TestEvaluateMeasureList(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "Parameters", params["resourceType"])

		fmt.Fprint(w, `{"group":[{"population":[{"count":3,"subjectResults":{"reference":"List/xyz"}}]}]}`)
	}))

	res, err := c.EvaluateMeasureList(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, "List/xyz", res.SubjectListReference)
}

func TestResolveSubjects(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/List/xyz", r.URL.Path)
		fmt.Fprint(w, `{"entry":[{"item":{"reference":"Patient/a"}},{"item":{"reference":"Patient/b"}},{"item":{}}]}`)
	}))

	subjects, err := c.ResolveSubjects(context.Background(), "List/xyz")
	require.NoError(t, err)
	assert.Equal(t, []string{"Patient/a", "Patient/b"}, subjects)
}

func TestFetchAllFollowsPagination(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/Patient", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("_count"))
		require.Equal(t, "id,identifier", r.URL.Query().Get("_elements"))
		fmt.Fprintf(w, `{"entry":[{"resource":{"id":"p1"}},{"resource":{"id":"p2"}}],"link":[{"relation":"next","url":"%s/page2"}]}`, srv.URL)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"entry":[{"resource":{"id":"p3"}}],"link":[{"relation":"self","url":"x"}]}`)
	})

	c, s := testClient(t, mux)
	srv = s

	resources, err := c.FetchAll(context.Background(), "Patient", []string{"id", "identifier"})
	require.NoError(t, err)
	require.Len(t, resources, 3)

	var last Patient
	require.NoError(t, json.Unmarshal(resources[2], &last))
	assert.Equal(t, "p3", last.ID)
}

func TestFetchAllRetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"entry":[{"resource":{"id":"p1"}}]}`)
	}))

	resources, err := c.FetchAll(context.Background(), "Patient", []string{"id"})
	require.NoError(t, err)
	assert.Len(t, resources, 1)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchAllGivesUpAfterBoundedRetries(t *testing.T) {
	var attempts atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.FetchAll(context.Background(), "Patient", []string{"id"})
	require.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, int32(4), attempts.Load(), "initial attempt plus three retries")
}

func TestFetchAllDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.FetchAll(context.Background(), "Patient", []string{"id"})
	require.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestPostResourceRejectsErrorStatus(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := c.PostResource(context.Background(), "Library", map[string]any{})
	assert.ErrorIs(t, err, ErrRemote)
}

func TestParseTime(t *testing.T) {
	for _, ok := range []string{"2024-05-28T00:00:00Z", "2024-05-28T00:00:00.123Z", "2024-05-28", "2024-05", "2024"} {
		_, err := ParseTime(ok)
		assert.NoError(t, err, ok)
	}
	_, err := ParseTime("not-a-date")
	assert.Error(t, err)
}
