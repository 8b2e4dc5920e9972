package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ytreport/internal/errs"
)

func TestGetJSON_ClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusTooManyRequests, errs.KindTransientExternal},
		{http.StatusInternalServerError, errs.KindTransientExternal},
		{http.StatusUnauthorized, errs.KindPermanentExternal},
		{http.StatusForbidden, errs.KindPermanentExternal},
		{http.StatusNotFound, errs.KindMissingEntity},
		{http.StatusTeapot, errs.KindInvariantViolation},
	}
	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		var out any
		err := getJSON(context.Background(), ts.Client(), ts.URL, timeoutOrDefault(1), &out)
		require.Error(t, err)
		require.Equal(t, tc.kind, errs.Classify(err))
		ts.Close()
	}
}

func TestGetJSON_DecodesOKResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(map[string]string{"a": "b"})
		w.Write(b)
	}))
	defer ts.Close()

	var out map[string]string
	err := getJSON(context.Background(), ts.Client(), ts.URL, timeoutOrDefault(1), &out)
	require.NoError(t, err)
	require.Equal(t, "b", out["a"])
}

func TestFetchAllComments_StopsAtMaxFetchAcrossPages(t *testing.T) {
	page := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page++
		resp := commentThreadDTO{
			Comments: []commentDTO{{Content: "a"}, {Content: "b"}, {Content: "c"}},
		}
		if page < 3 {
			resp.NextPageToken = "next"
		}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	client := &YouTubeDataClient{baseURL: ts.URL, http: ts.Client(), timeout: timeoutOrDefault(1)}
	out, err := client.FetchAllComments(context.Background(), "vid1", 5)
	require.NoError(t, err)
	require.Len(t, out, 5)
}

func TestFetchAllComments_CommentsDisabledReturnsEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	client := &YouTubeDataClient{baseURL: ts.URL, http: ts.Client(), timeout: timeoutOrDefault(1)}
	out, err := client.FetchAllComments(context.Background(), "vid1", 100)
	require.NoError(t, err)
	require.Empty(t, out)
}
