package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrServiceDisabled is returned by calls that need the sidecar while it is disabled
var ErrServiceDisabled = errors.New("plotting service is disabled")

// PlottingService handles communication with the sidecar plotting application
type PlottingService struct {
	baseURL    string
	httpClient *http.Client
	config     PlottingServiceConfig
	enabled    bool
}

// PlottingServiceConfig contains configuration for the plotting service
type PlottingServiceConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// PlottingResponse represents the response from the plotting service
type PlottingResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	PlotID  string `json:"plot_id,omitempty"`
}

// BatchPlottingResponse represents the response from the batch plotting endpoint
type BatchPlottingResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	DashboardURL string       `json:"dashboard_url,omitempty"`
	Summary      BatchSummary `json:"summary,omitempty"`
}

// BatchSummary represents the summary of a batch operation
type BatchSummary struct {
	TotalPlots int `json:"total_plots"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// DefaultPlottingServiceConfig returns default configuration for the plotting service
func DefaultPlottingServiceConfig() PlottingServiceConfig {
	return PlottingServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// NewPlottingService creates a disabled plotting service client
func NewPlottingService(config PlottingServiceConfig) *PlottingService {
	return &PlottingService{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Enable enables the plotting service
func (ps *PlottingService) Enable() {
	ps.enabled = true
}

// Disable disables the plotting service
func (ps *PlottingService) Disable() {
	ps.enabled = false
}

// IsEnabled returns whether the plotting service is enabled
func (ps *PlottingService) IsEnabled() bool {
	return ps.enabled
}

// SendPlotData posts a single plot to the sidecar
func (ps *PlottingService) SendPlotData(ctx context.Context, plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{Success: false, Message: ErrServiceDisabled.Error()}, nil
	}

	var plotResponse PlottingResponse
	status, err := ps.postJSON(ctx, "/api/plot", plotData, &plotResponse)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &plotResponse, errors.Errorf("plot request failed with status %d: %s", status, plotResponse.Message)
	}
	return &plotResponse, nil
}

// SendPlotDataWithRetry sends plot data, retrying failed attempts after the
// configured delay
func (ps *PlottingService) SendPlotDataWithRetry(ctx context.Context, plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{Success: false, Message: ErrServiceDisabled.Error()}, nil
	}

	attempts := ps.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := ps.SendPlotData(ctx, plotData)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Wait before retry (except for the last attempt)
		if attempt < attempts-1 {
			select {
			case <-time.After(ps.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, errors.Wrapf(lastErr, "failed to send plot data after %d attempts", attempts)
}

// BatchSendPlots sends multiple plots in a single request
func (ps *PlottingService) BatchSendPlots(ctx context.Context, plotDataList []PlotData) (*BatchPlottingResponse, error) {
	if !ps.enabled {
		return &BatchPlottingResponse{Success: false, Message: ErrServiceDisabled.Error()}, nil
	}

	payload := map[string]interface{}{
		"plots": plotDataList,
		"batch": true,
	}

	var batchResponse BatchPlottingResponse
	status, err := ps.postJSON(ctx, "/api/batch-plot", payload, &batchResponse)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &batchResponse, errors.Errorf("batch request failed with status %d: %s", status, batchResponse.Message)
	}
	return &batchResponse, nil
}

// CheckHealth checks if the plotting service is available
func (ps *PlottingService) CheckHealth(ctx context.Context) error {
	if !ps.enabled {
		return ErrServiceDisabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ps.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "failed to create health check request")
	}

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send health check request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

func (ps *PlottingService) postJSON(ctx context.Context, path string, body, out interface{}) (int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal plot data")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ps.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "go-continual-dashboard")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to send HTTP request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read response body")
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, errors.Errorf("request to %s failed with status %d: %s", path, resp.StatusCode, bodySnippet(respBody))
		}
		return 0, errors.Wrapf(err, "failed to parse response from %s", path)
	}
	return resp.StatusCode, nil
}

// bodySnippet returns the start of a non-JSON error body for messages
func bodySnippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
