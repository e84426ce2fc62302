package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
)

func TestCreateTaskSendsCoordinatesTask(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/createTask", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"errorId":0,"taskId":72345678901}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	id, err := c.CreateTask(context.Background(), Task{
		Body:         []byte("image"),
		Instructions: []byte("prompt"),
		Comment:      DefaultComment,
	})
	require.NoError(t, err)
	require.Equal(t, int64(72345678901), id)

	require.Equal(t, "secret", got["clientKey"])
	require.Equal(t, "rn", got["languagePool"])
	task := got["task"].(map[string]any)
	require.Equal(t, "CoordinatesTask", task["type"])
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("image")), task["body"])
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("prompt")), task["imginstructions"])
	require.Equal(t, DefaultComment, task["comment"])
}

func TestCreateTaskErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusOK, `{"errorId":10,"errorCode":"ERROR_ZERO_BALANCE","errorDescription":"no funds"}`},
		{"malformed json", http.StatusOK, `{"errorId":`},
		{"missing error id", http.StatusOK, `{"taskId":5}`},
		{"missing task id", http.StatusOK, `{"errorId":0}`},
		{"http failure", http.StatusBadGateway, `oops`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k").CreateTask(context.Background(), Task{Body: []byte("x")})
			require.ErrorIs(t, err, lead.ErrExternalAPI)
		})
	}
}

func TestCreateTaskAPIErrorDetails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errorId":1,"errorCode":"ERROR_KEY_DOES_NOT_EXIST","errorDescription":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").CreateTask(context.Background(), Task{Body: []byte("x")})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "ERROR_KEY_DOES_NOT_EXIST", apiErr.Code)
}

func TestCreateTaskRejectsEmptyImage(t *testing.T) {
	t.Parallel()

	_, err := NewClient("http://127.0.0.1:1", "k").CreateTask(context.Background(), Task{})
	require.ErrorIs(t, err, lead.ErrValidationRejected)
}

func TestTaskResult(t *testing.T) {
	t.Parallel()

	responses := []string{
		`{"errorId":0,"status":"processing"}`,
		`{"errorId":0,"status":"ready","solution":{"coordinates":[{"x":57,"y":132},{"x":200.5,"y":9}]}}`,
	}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/getTaskResult", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, float64(42), req["taskId"])
		_, _ = w.Write([]byte(responses[calls]))
		calls++
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	res, err := c.TaskResult(context.Background(), 42)
	require.NoError(t, err)
	require.False(t, res.Ready)

	res, err = c.TaskResult(context.Background(), 42)
	require.NoError(t, err)
	require.True(t, res.Ready)
	require.Equal(t, []lead.Point{{X: 57, Y: 132}, {X: 200.5, Y: 9}}, res.Coordinates)
}

func TestTaskResultMalformed(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"ready without points": `{"errorId":0,"status":"ready","solution":{"coordinates":[]}}`,
		"unknown status":       `{"errorId":0,"status":"weird"}`,
		"api error":            `{"errorId":12,"errorCode":"ERROR_CAPTCHA_UNSOLVABLE"}`,
	}
	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k").TaskResult(context.Background(), 1)
			require.ErrorIs(t, err, lead.ErrExternalAPI)
		})
	}
}
