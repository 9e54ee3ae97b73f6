package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"trello-project/backend/tasks-service/lifecycle"
	"trello-project/backend/tasks-service/models"
	"trello-project/backend/tasks-service/repositories"
	"trello-project/backend/tasks-service/services"
)

func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// HTTPError is a non-2xx answer from the tasks service. It unwraps to the
// domain error the status code stands for, so callers can use errors.Is.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("tasks service returned %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusForbidden:
		return lifecycle.ErrForbidden
	case http.StatusConflict:
		return lifecycle.ErrInvalidTransition
	case http.StatusBadRequest:
		return lifecycle.ErrValidation
	case http.StatusNotFound:
		return repositories.ErrNotFound
	}
	return nil
}

// clientFault reports whether the error is the caller's doing. Those do
// not count against the breaker.
func clientFault(err error) bool {
	e, ok := err.(*HTTPError)
	return ok && e.StatusCode >= 400 && e.StatusCode < 500
}

// TaskClient talks to the tasks service on behalf of one bearer token.
// Every call runs through a circuit breaker.
type TaskClient struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  logrus.FieldLogger
}

func NewTaskClient(baseURL, token string, httpClient *http.Client, logger logrus.FieldLogger) *TaskClient {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "TasksServiceCB",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
	return &TaskClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
		breaker: breaker,
		logger:  logger,
	}
}

// UpdateTask sends a partial patch and returns the canonical record.
func (c *TaskClient) UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(taskID), patch, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *TaskClient) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Dashboard fetches the actor's dashboard. days <= 0 uses the server default.
func (c *TaskClient) Dashboard(ctx context.Context, days int) (*services.DashboardView, error) {
	path := "/api/tasks/dashboard"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	var view services.DashboardView
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *TaskClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, body, out)
	})
	if err != nil {
		c.logger.WithField("path", path).Warnf("Event ID: TASKS_REQUEST_FAILED, Description: %s %s: %v", method, path, err)
	}
	return err
}

func (c *TaskClient) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
