package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/MOHCentral/opm-stats-gateway/internal/models"
)

// Config holds OpenSearch connection and index settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		URL:           "https://localhost:9200",
		Username:      "admin",
		Password:      "admin",
		TLSSkipVerify: true,
		IndexPrefix:   "opm-events",
	}
}

// OpenSearchWriter indexes canonical events with a single _bulk request
// per batch. Any item-level rejection fails the whole batch; events
// within one request always target one daily index, which is what keeps
// the all-or-fail accounting honest.
type OpenSearchWriter struct {
	client *opensearch.Client
	config Config
}

func NewOpenSearchWriter(cfg Config) (*OpenSearchWriter, error) {
	osCfg := opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.TLSSkipVerify,
			},
		},
	}

	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &OpenSearchWriter{client: client, config: cfg}, nil
}

// Initialize verifies connectivity and installs the index template.
func (w *OpenSearchWriter) Initialize(ctx context.Context) error {
	info, err := w.client.Info(w.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to opensearch: %w", err)
	}
	defer info.Body.Close()
	if info.IsError() {
		return fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	template := map[string]interface{}{
		"index_patterns": []string{w.config.IndexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   1,
				"number_of_replicas": 0,
			},
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"type":      map[string]string{"type": "keyword"},
					"match_id":  map[string]string{"type": "keyword"},
					"server_id": map[string]string{"type": "keyword"},
					"timestamp": map[string]string{"type": "date"},
				},
			},
		},
	}

	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("marshal index template: %w", err)
	}

	res, err := w.client.Indices.PutIndexTemplate(
		w.config.IndexPrefix,
		bytes.NewReader(body),
		w.client.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index template creation failed: %s", res.Status())
	}
	return nil
}

func (w *OpenSearchWriter) indexName(now time.Time) string {
	return fmt.Sprintf("%s-%s", w.config.IndexPrefix, now.UTC().Format("2006.01.02"))
}

func (w *OpenSearchWriter) WriteBatch(ctx context.Context, events []models.CanonicalEvent) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	action := []byte("{\"index\":{}}\n")
	for i := range events {
		doc, err := json.Marshal(events[i].Document())
		if err != nil {
			return fmt.Errorf("%w: marshal event: %v", ErrSinkUnavailable, err)
		}
		buf.Write(action)
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := w.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		w.client.Bulk.WithContext(ctx),
		w.client.Bulk.WithIndex(w.indexName(time.Now())),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: bulk request rejected: %s", ErrSinkUnavailable, res.Status())
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("%w: decode bulk response: %v", ErrSinkUnavailable, err)
	}

	if result.Errors {
		var reasons []string
		for _, item := range result.Items {
			for _, op := range item {
				if op.Status >= 300 && op.Error.Reason != "" {
					reasons = append(reasons, op.Error.Reason)
				}
			}
		}
		detail := "item failures"
		if len(reasons) > 0 {
			detail = strings.Join(reasons, "; ")
		}
		return fmt.Errorf("%w: %s", ErrSinkUnavailable, detail)
	}

	return nil
}
