// Package main provides the read-only status Lambda entry point.
//
// Exposed through a Lambda Function URL, it answers operator queries
// against the job store:
//   - GET /jobs?status=pending&limit=50 — records in a status
//   - GET /jobs/{id} — a single record with full attempt history
//
// Lightweight Lambda (128 MB, 10s timeout), no S3/Gemini/Instagram access.
package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/lambdaboot"
	"github.com/fpang/reel-scheduler/internal/logging"
	"github.com/fpang/reel-scheduler/internal/store"
)

const defaultListLimit = 50

var jobStore store.JobStore

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	jobStore = lambdaboot.InitJobStore(aws.Config, "DYNAMO_TABLE_NAME")

	lambdaboot.StartupLog("status-lambda", initStart).
		DynamoTable("jobs", os.Getenv("DYNAMO_TABLE_NAME")).
		Log()
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", handleList)
	mux.HandleFunc("/jobs/", handleGet)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}

// jobView is the wire shape of one record. Claim tokens stay internal.
type jobView struct {
	ID               string                `json:"id"`
	Status           store.Status          `json:"status"`
	SourceAssetRef   string                `json:"sourceAssetRef"`
	ScheduledAt      time.Time             `json:"scheduledAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	AttemptCount     int                   `json:"attemptCount"`
	LastError        string                `json:"lastError,omitempty"`
	LastErrorKind    string                `json:"lastErrorKind,omitempty"`
	PublishedAssetID string                `json:"publishedAssetId,omitempty"`
	Permalink        string                `json:"permalink,omitempty"`
	Caption          string                `json:"caption,omitempty"`
	Attempts         []store.AttemptRecord `json:"attempts,omitempty"`
}

func toView(rec *store.JobRecord, includeAttempts bool) jobView {
	v := jobView{
		ID:               rec.Item.ID,
		Status:           rec.Status,
		SourceAssetRef:   rec.Item.SourceAssetRef,
		ScheduledAt:      rec.ScheduledAt,
		UpdatedAt:        rec.UpdatedAt,
		AttemptCount:     rec.AttemptCount,
		LastError:        rec.LastError,
		LastErrorKind:    rec.LastErrorKind,
		PublishedAssetID: rec.PublishedAssetID,
		Permalink:        rec.Permalink,
		Caption:          rec.Item.Caption,
	}
	if includeAttempts {
		v.Attempts = rec.Attempts
	}
	return v
}

var validStatuses = map[string]store.Status{
	string(store.StatusPending):      store.StatusPending,
	string(store.StatusClaimed):      store.StatusClaimed,
	string(store.StatusTransforming): store.StatusTransforming,
	string(store.StatusPublishing):   store.StatusPublishing,
	string(store.StatusPublished):    store.StatusPublished,
	string(store.StatusFailed):       store.StatusFailed,
}

func handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	statusParam := r.URL.Query().Get("status")
	status, ok := validStatuses[strings.ToLower(statusParam)]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown status: "+statusParam)
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := jobStore.ListByStatus(r.Context(), status, limit)
	if err != nil {
		log.Error().Err(err).Str("status", statusParam).Msg("ListByStatus failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	views := make([]jobView, 0, len(records))
	for _, rec := range records {
		views = append(views, toView(rec, false))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"count":  len(views),
		"jobs":   views,
	})
}

func handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	rec, err := jobStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found: "+id)
			return
		}
		log.Error().Err(err).Str("jobId", id).Msg("Get failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, toView(rec, true))
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, statusCode int, msg string) {
	writeJSON(w, statusCode, map[string]string{"error": msg})
}
