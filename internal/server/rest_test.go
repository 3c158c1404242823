package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/goevery/seatcast/internal/auth"
	"github.com/goevery/seatcast/internal/handler"
	"github.com/goevery/seatcast/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, method string, url string, apiKey string, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func decodeError(t *testing.T, resp *http.Response) ierr.Error {
	t.Helper()

	var body map[string]ierr.Error
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return body["error"]
}

func TestRESTServer_Authentication(t *testing.T) {
	s := newTestServer(t)

	t.Run("missing api key", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, s.url+"/publish", "", `{"courseId":1,"message":"hello"}`)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, ierr.ErrorCodeUnauthenticated, decodeError(t, resp).Code)
	})

	t.Run("invalid api key", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, s.url+"/publish", "invalid-api-key", `{"courseId":1,"message":"hello"}`)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("preflight skips authentication", func(t *testing.T) {
		resp := doRequest(t, http.MethodOptions, s.url+"/publish", "", "")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestRESTServer_Publish(t *testing.T) {
	s := newTestServer(t)
	conn := s.dial(t)
	authenticate(t, conn, signToken(t, "7", auth.RoleCustomer))

	t.Run("valid api key", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, s.url+"/publish", "test-api-key", `{"courseId":1,"message":"hello"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body handler.PublishResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 1, body.Report.Delivered)
	})

	t.Run("empty message", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, s.url+"/publish", "test-api-key", `{"courseId":1,"message":"  "}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, decodeError(t, resp).Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, s.url+"/publish", "test-api-key", `not json`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRESTServer_BookingChange(t *testing.T) {
	s := newTestServer(t)
	s.store.PutCourse(1, "Crossfit", 2)
	_, err := s.store.Book(1, 100)
	require.NoError(t, err)
	_, err = s.store.Book(1, 101)
	require.NoError(t, err)

	resp := doRequest(t, http.MethodPost, s.url+"/courses/1/bookings", "test-api-key", `{"participantDelta":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body handler.BookingChangeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body.Transition.OldFreeSpots)
	assert.Equal(t, 1, body.Transition.NewFreeSpots)
	assert.Equal(t, 1, body.SeatsAvailable)

	t.Run("unknown course", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, s.url+"/courses/404/bookings", "test-api-key", `{"participantDelta":1}`)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid course id", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, s.url+"/courses/abc/bookings", "test-api-key", `{"participantDelta":1}`)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRESTServer_DeleteCourse(t *testing.T) {
	s := newTestServer(t)
	s.store.PutCourse(42, "Crossfit", 10)
	s.store.PutUser(7, "seven@example.com")
	_, err := s.store.Book(42, 7)
	require.NoError(t, err)

	resp := doRequest(t, http.MethodDelete, s.url+"/courses/42", "test-api-key", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body handler.DeleteCourseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.DeletedCourseId)
	assert.Equal(t, int64(42), *body.DeletedCourseId)
	require.Len(t, body.AffectedRecipients, 1)
	assert.Equal(t, int64(7), body.AffectedRecipients[0].RecipientId)
	assert.Equal(t, 0, body.MailFailures)

	resp = doRequest(t, http.MethodDelete, s.url+"/courses/42", "test-api-key", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var again handler.DeleteCourseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&again))
	assert.Nil(t, again.DeletedCourseId)
	assert.Empty(t, again.AffectedRecipients)

	t.Run("history records the cancellation", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, s.url+"/courses/42/notifications", "test-api-key", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body handler.HistoryResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Entries, 1)
		assert.Equal(t, "course_deleted", body.Entries[0].Event.Type)
	})
}

func TestRESTServer_Stats(t *testing.T) {
	s := newTestServer(t)

	resp := doRequest(t, http.MethodPost, s.url+"/publish", "test-api-key", `{"courseId":1,"message":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doRequest(t, http.MethodPost, s.url+"/courses/404/bookings", "test-api-key", `{"participantDelta":1}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, s.url+"/stats", "test-api-key", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body handler.StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(1), body.Operations["publish"].Count)
	assert.Equal(t, int64(0), body.Operations["publish"].Failures)
	assert.Equal(t, int64(1), body.Operations["applyBookingChange"].Failures)

	t.Run("requires api key", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, s.url+"/stats", "", "")

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
