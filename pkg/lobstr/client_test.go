package lobstr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListRunIDs_FiltersDoneAndPaginates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/runs", r.URL.Path)
		assert.Equal(t, "cl-1", r.URL.Query().Get("cluster"))

		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "1":
			fmt.Fprint(w, `{"count":3,"page":1,"limit":120,"total_pages":2,"data":[
				{"id":"run-a","status":"done"},
				{"id":"run-b","status":"running"}]}`)
		case "2":
			fmt.Fprint(w, `{"count":3,"page":2,"limit":120,"total_pages":2,"data":[
				{"id":"run-c","status":"done"}]}`)
		default:
			t.Errorf("unexpected page %q", page)
		}
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	ids, err := client.ListRunIDs(context.Background(), "cl-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-c"}, ids)
}

func TestListRunIDs_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":{"message":"no such cluster"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	_, err := client.ListRunIDs(context.Background(), "nope")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchRecords_Paginates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/results", r.URL.Path)
		assert.Equal(t, "run-a", r.URL.Query().Get("run"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `{"total_pages":2,"data":[{"phone":"06.11.22.33.44","city":"Lyon"}]}`)
		} else {
			fmt.Fprint(w, `{"total_pages":2,"data":[{"phone":"0699999999","neighborhood":"Croix-Rousse"}]}`)
		}
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	records, err := client.FetchRecords(context.Background(), "run-a")

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "06.11.22.33.44", records[0].Phone())
	assert.Equal(t, "Lyon", records[0].Neighbourhood())
	assert.Equal(t, "Croix-Rousse", records[1].Neighbourhood())
}

func TestListClusters_ActiveOnly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/clusters", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total_pages":1,"data":[
			{"id":"cl-1","name":"Paris 18","is_active":true},
			{"id":"cl-2","name":"Old Lyon","is_active":false}]}`)
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	clusters, err := client.ListClusters(context.Background())

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "cl-1", clusters[0].ID)
	assert.Equal(t, "Paris 18", clusters[0].Name)
}

func TestGetCluster_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"errors": map[string]any{"message": "gone", "type": "ClusterDoesNotExistException", "code": 400},
		})
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	cluster, err := client.GetCluster(context.Background(), "gone")

	require.NoError(t, err)
	assert.Nil(t, cluster)
}

func TestGetCluster_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/clusters/cl-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cl-1","name":"Paris 18","is_active":true}`)
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	cluster, err := client.GetCluster(context.Background(), "cl-1")

	require.NoError(t, err)
	require.NotNil(t, cluster)
	assert.Equal(t, "Paris 18", cluster.Name)
}

func TestGet_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total_pages":1,"data":[]}`)
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := client.ListClusters(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRawRecord_AlternateFieldNames(t *testing.T) {
	t.Parallel()

	r := RawRecord{
		"phone":         "06.11.22.33.44",
		"scraping_time": "25/03/2024 09:00:00",
		"city":          "Lyon",
		"breadcrumb":    "Apartment",
		"room_count":    float64(3),
		"area":          "64",
		"DPE_string":    "D",
	}

	assert.Equal(t, "06.11.22.33.44", r.Phone())
	assert.Equal(t, "25/03/2024 09:00:00", r.ScrapingTime())
	assert.Equal(t, "Lyon", r.Neighbourhood())
	assert.Equal(t, "Apartment", r.RealEstateType())
	assert.Equal(t, "3", r.Rooms())
	assert.Equal(t, "64", r.Size())
	assert.Equal(t, "D", r.Energy())
	assert.Empty(t, RawRecord{}.Phone())
}
