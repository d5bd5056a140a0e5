package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	tokens := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "nextstep_task_tokens_total",
		Help: "tokens",
	}, []string{"model", "task_id", "type"})
	tokens.WithLabelValues("openai/gpt-4o", "t1", "prompt").Add(1000)
	return reg
}

func TestHandlerExposesRegistry(t *testing.T) {
	srv := httptest.NewServer(Handler(sampleRegistry()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `nextstep_task_tokens_total{model="openai/gpt-4o",task_id="t1",type="prompt"} 1000`)
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector", "nextstep.prom")

	require.NoError(t, WriteTextfile(path, sampleRegistry()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# TYPE nextstep_task_tokens_total counter")
	assert.Contains(t, string(data), `task_id="t1"`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

// fakePrometheus answers instant queries by matching a substring of the query.
func fakePrometheus(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		query := r.Form.Get("query")
		result := `[]`
		for needle, value := range answers {
			if strings.Contains(query, needle) {
				result = value
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"success","data":{"resultType":"vector","result":`+result+`}}`)
	}))
}

func sample(value string) string {
	return `[{"metric":{},"value":[1700000000,"` + value + `"]}]`
}

func TestGetTaskMetrics(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`type="prompt"`:                 sample("1000"),
		`type="completion"`:             sample("500"),
		"nextstep_task_cost_usd_total":  sample("0.0075"),
		"nextstep_task_decisions_total": sample("3"),
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := q.GetTaskMetrics(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, &TaskMetrics{
		TaskID:           "t1",
		PromptTokens:     1000,
		CompletionTokens: 500,
		TotalTokens:      1500,
		TotalCost:        0.0075,
		Decisions:        3,
	}, m)
}

func TestGetTaskMetricsByModel(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		"group by (model)":  `[{"metric":{"model":"openai/gpt-4o"},"value":[1700000000,"1"]}]`,
		`type="prompt"`:     sample("10"),
		`type="completion"`: sample("5"),
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	byModel, err := q.GetTaskMetricsByModel(context.Background(), "t1")
	require.NoError(t, err)
	require.Contains(t, byModel, "openai/gpt-4o")
	assert.Equal(t, int64(15), byModel["openai/gpt-4o"].TotalTokens)
	assert.Zero(t, byModel["openai/gpt-4o"].TotalCost)
}
