package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/content"
)

// DynamoDB key constants for the single-table design. Every reel occupies
// exactly one item: PK = REEL#{id}, SK = JOB. The status GSI (hash =
// status, range = scheduledAtMs) serves due and stale listing without
// table scans.
const (
	pkPrefix    = "REEL#"
	skJob       = "JOB"
	statusIndex = "status-due-index"
)

// DynamoStore implements JobStore on DynamoDB. Every CAS in the JobStore
// contract is enforced server-side with a condition expression, so the
// store stays correct even when a scheduled tick races a manual one-off run.
type DynamoStore struct {
	client       *dynamodb.Client
	tableName    string
	claimTimeout time.Duration
}

// Compile-time interface check.
var _ JobStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table. claimTimeout
// is the age after which an in-flight claim is considered abandoned and
// may be taken over by a later tick.
func NewDynamoStore(client *dynamodb.Client, tableName string, claimTimeout time.Duration) *DynamoStore {
	return &DynamoStore{
		client:       client,
		tableName:    tableName,
		claimTimeout: claimTimeout,
	}
}

// --- Wire representation ---

// dynamoJob is the stored shape of a JobRecord. Timestamps are epoch
// milliseconds so the GSI range key and condition expressions can compare
// them numerically.
type dynamoJob struct {
	SourceAssetRef string                `dynamodbav:"sourceAssetRef"`
	Transform      content.TransformSpec `dynamodbav:"transform"`
	Caption        string                `dynamodbav:"caption,omitempty"`
	Metadata       map[string]string     `dynamodbav:"metadata,omitempty"`

	Status           string          `dynamodbav:"status"`
	AttemptCount     int             `dynamodbav:"attemptCount"`
	LastError        string          `dynamodbav:"lastError,omitempty"`
	LastErrorKind    string          `dynamodbav:"lastErrorKind,omitempty"`
	PublishedAssetID string          `dynamodbav:"publishedAssetId,omitempty"`
	Permalink        string          `dynamodbav:"permalink,omitempty"`
	ClaimToken       string          `dynamodbav:"claimToken,omitempty"`
	ScheduledAtMs    int64           `dynamodbav:"scheduledAtMs"`
	UpdatedAtMs      int64           `dynamodbav:"updatedAtMs"`
	Attempts         []dynamoAttempt `dynamodbav:"attempts,omitempty"`
}

type dynamoAttempt struct {
	Number      int    `dynamodbav:"number"`
	StartedAtMs int64  `dynamodbav:"startedAtMs"`
	EndedAtMs   int64  `dynamodbav:"endedAtMs"`
	Error       string `dynamodbav:"error,omitempty"`
	ErrorKind   string `dynamodbav:"errorKind,omitempty"`
}

func jobPK(id string) string { return pkPrefix + id }

func toMs(t time.Time) int64   { return t.UnixMilli() }
func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func toDynamoAttempt(a AttemptRecord) dynamoAttempt {
	return dynamoAttempt{
		Number:      a.Number,
		StartedAtMs: toMs(a.StartedAt),
		EndedAtMs:   toMs(a.EndedAt),
		Error:       a.Error,
		ErrorKind:   a.ErrorKind,
	}
}

func (dj *dynamoJob) toRecord(id string) *JobRecord {
	rec := &JobRecord{
		Item: content.Item{
			ID:             id,
			SourceAssetRef: dj.SourceAssetRef,
			ScheduledAt:    fromMs(dj.ScheduledAtMs),
			Transform:      dj.Transform,
			Caption:        dj.Caption,
			Metadata:       dj.Metadata,
		},
		Status:           Status(dj.Status),
		AttemptCount:     dj.AttemptCount,
		LastError:        dj.LastError,
		LastErrorKind:    dj.LastErrorKind,
		PublishedAssetID: dj.PublishedAssetID,
		Permalink:        dj.Permalink,
		ClaimToken:       dj.ClaimToken,
		ScheduledAt:      fromMs(dj.ScheduledAtMs),
		UpdatedAt:        fromMs(dj.UpdatedAtMs),
	}
	for _, a := range dj.Attempts {
		rec.Attempts = append(rec.Attempts, AttemptRecord{
			Number:    a.Number,
			StartedAt: fromMs(a.StartedAtMs),
			EndedAt:   fromMs(a.EndedAtMs),
			Error:     a.Error,
			ErrorKind: a.ErrorKind,
		})
	}
	return rec
}

// --- Internal helpers ---

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: jobPK(id)},
		"SK": &types.AttributeValueMemberS{Value: skJob},
	}
}

// conditionFailed reports whether err is a failed condition expression —
// the CAS lost. Callers re-read the record to classify why.
func conditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *DynamoStore) getJob(ctx context.Context, id string) (*dynamoJob, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       s.key(id),
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem %s: %w", id, err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}
	var dj dynamoJob
	if err := attributevalue.UnmarshalMap(result.Item, &dj); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", id, err)
	}
	return &dj, nil
}

// --- Registration ---

func (s *DynamoStore) Register(ctx context.Context, item *content.Item) (*JobRecord, error) {
	now := time.Now().UTC()
	dj := dynamoJob{
		SourceAssetRef: item.SourceAssetRef,
		Transform:      item.Transform,
		Caption:        item.Caption,
		Metadata:       item.Metadata,
		Status:         string(StatusPending),
		ScheduledAtMs:  toMs(item.ScheduledAt),
		UpdatedAtMs:    toMs(now),
	}

	av, err := attributevalue.MarshalMap(dj)
	if err != nil {
		return nil, fmt.Errorf("marshal job %s: %w", item.ID, err)
	}
	av["PK"] = &types.AttributeValueMemberS{Value: jobPK(item.ID)}
	av["SK"] = &types.AttributeValueMemberS{Value: skJob}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if conditionFailed(err) {
			// Same content registered before — return the existing record.
			existing, getErr := s.Get(ctx, item.ID)
			if getErr != nil {
				return nil, fmt.Errorf("register %s: record exists but read failed: %w", item.ID, getErr)
			}
			log.Debug().Str("jobId", item.ID).Str("status", string(existing.Status)).Msg("Job already registered")
			return existing, nil
		}
		return nil, fmt.Errorf("register %s: %w", item.ID, err)
	}

	log.Info().
		Str("jobId", item.ID).
		Str("source", item.SourceAssetRef).
		Time("scheduledAt", item.ScheduledAt).
		Msg("Job registered")
	return dj.toRecord(item.ID), nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (*JobRecord, error) {
	dj, err := s.getJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return dj.toRecord(id), nil
}

// --- Eligibility listing ---

func (s *DynamoStore) ListDue(ctx context.Context, now time.Time) ([]string, error) {
	items, err := s.queryStatus(ctx, StatusPending,
		aws.String("#s = :st AND scheduledAtMs <= :now"),
		map[string]types.AttributeValue{
			":st":  &types.AttributeValueMemberS{Value: string(StatusPending)},
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(now))},
		}, nil)
	if err != nil {
		return nil, fmt.Errorf("list due at %s: %w", now.Format(time.RFC3339), err)
	}
	return orderedIDs(items), nil
}

func (s *DynamoStore) ListStale(ctx context.Context, now time.Time) ([]string, error) {
	before := toMs(now.Add(-s.claimTimeout))
	var all []dueEntry
	for _, st := range []Status{StatusClaimed, StatusTransforming, StatusPublishing} {
		items, err := s.queryStatus(ctx, st,
			aws.String("#s = :st"),
			map[string]types.AttributeValue{
				":st":     &types.AttributeValueMemberS{Value: string(st)},
				":before": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", before)},
			},
			aws.String("updatedAtMs <= :before"))
		if err != nil {
			return nil, fmt.Errorf("list stale %s: %w", st, err)
		}
		all = append(all, items...)
	}
	return orderedIDs(all), nil
}

// dueEntry carries the fields needed for deterministic ordering.
type dueEntry struct {
	id          string
	scheduledMs int64
}

// orderedIDs sorts by (scheduledAt, id) ascending and returns the ids.
// The GSI already orders by range key within one query; the explicit sort
// makes ties deterministic and merges multi-status results.
func orderedIDs(entries []dueEntry) []string {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].scheduledMs != entries[j].scheduledMs {
			return entries[i].scheduledMs < entries[j].scheduledMs
		}
		return entries[i].id < entries[j].id
	})
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.id)
	}
	return ids
}

func (s *DynamoStore) queryStatus(ctx context.Context, st Status, keyCond *string, values map[string]types.AttributeValue, filter *string) ([]dueEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:                 &s.tableName,
		IndexName:                 aws.String(statusIndex),
		KeyConditionExpression:    keyCond,
		FilterExpression:          filter,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ProjectionExpression:      aws.String("PK, scheduledAtMs"),
	}

	var entries []dueEntry
	// Paginate — DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query status %s: %w", st, err)
		}
		for _, item := range result.Items {
			pkAttr, ok := item["PK"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			var ms int64
			if n, ok := item["scheduledAtMs"].(*types.AttributeValueMemberN); ok {
				fmt.Sscanf(n.Value, "%d", &ms)
			}
			entries = append(entries, dueEntry{
				id:          strings.TrimPrefix(pkAttr.Value, pkPrefix),
				scheduledMs: ms,
			})
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return entries, nil
}

// --- Claiming ---

func (s *DynamoStore) Claim(ctx context.Context, id string, now time.Time) (string, *JobRecord, error) {
	token := uuid.NewString()
	staleBefore := toMs(now.Add(-s.claimTimeout))

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.key(id),
		UpdateExpression: aws.String("SET #s = :claimed, claimToken = :tok, updatedAtMs = :now, attemptCount = attemptCount + :one"),
		ConditionExpression: aws.String(
			"#s = :pending OR ((#s = :claimed0 OR #s = :transforming OR #s = :publishing) AND updatedAtMs <= :staleBefore)"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":claimed":      &types.AttributeValueMemberS{Value: string(StatusClaimed)},
			":pending":      &types.AttributeValueMemberS{Value: string(StatusPending)},
			":claimed0":     &types.AttributeValueMemberS{Value: string(StatusClaimed)},
			":transforming": &types.AttributeValueMemberS{Value: string(StatusTransforming)},
			":publishing":   &types.AttributeValueMemberS{Value: string(StatusPublishing)},
			":tok":          &types.AttributeValueMemberS{Value: token},
			":now":          &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(now))},
			":staleBefore":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", staleBefore)},
			":one":          &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if conditionFailed(err) {
			return "", nil, s.classifyClaimFailure(ctx, id)
		}
		return "", nil, fmt.Errorf("claim %s: %w", id, err)
	}

	var dj dynamoJob
	if err := attributevalue.UnmarshalMap(result.Attributes, &dj); err != nil {
		return "", nil, fmt.Errorf("claim %s: unmarshal: %w", id, err)
	}
	rec := dj.toRecord(id)

	log.Info().
		Str("jobId", id).
		Int("attempt", rec.AttemptCount).
		Msg("Job claimed")
	return token, rec, nil
}

// classifyClaimFailure turns a lost claim CAS into the contract error.
func (s *DynamoStore) classifyClaimFailure(ctx context.Context, id string) error {
	dj, err := s.getJob(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("claim %s: classify: %w", id, err)
	}
	if Status(dj.Status).Terminal() {
		return ErrTerminal
	}
	return ErrAlreadyClaimed
}

// --- Token-gated mutation ---

// inFlightCondition matches records whose claim token is tok and whose
// status is still in flight. Shared by Transition/Reschedule/MarkFailed.
const inFlightCondition = "claimToken = :tok AND (#s = :claimed OR #s = :transforming OR #s = :publishing)"

func inFlightValues(tok string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":tok":          &types.AttributeValueMemberS{Value: tok},
		":claimed":      &types.AttributeValueMemberS{Value: string(StatusClaimed)},
		":transforming": &types.AttributeValueMemberS{Value: string(StatusTransforming)},
		":publishing":   &types.AttributeValueMemberS{Value: string(StatusPublishing)},
	}
}

// classifyCASFailure distinguishes a vanished record from a lost claim.
func (s *DynamoStore) classifyCASFailure(ctx context.Context, id string) error {
	if _, err := s.getJob(ctx, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrStaleClaim
}

func (s *DynamoStore) Transition(ctx context.Context, id, token string, newStatus Status, now time.Time) error {
	values := inFlightValues(token)
	values[":new"] = &types.AttributeValueMemberS{Value: string(newStatus)}
	values[":now"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(now))}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       s.key(id),
		UpdateExpression:          aws.String("SET #s = :new, updatedAtMs = :now"),
		ConditionExpression:       aws.String(inFlightCondition),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if conditionFailed(err) {
			return s.classifyCASFailure(ctx, id)
		}
		return fmt.Errorf("transition %s -> %s: %w", id, newStatus, err)
	}

	log.Debug().Str("jobId", id).Str("status", string(newStatus)).Msg("Job transitioned")
	return nil
}

func (s *DynamoStore) Reschedule(ctx context.Context, id, token string, at time.Time, attempt AttemptRecord) error {
	attemptAV, err := attributevalue.MarshalList([]dynamoAttempt{toDynamoAttempt(attempt)})
	if err != nil {
		return fmt.Errorf("reschedule %s: marshal attempt: %w", id, err)
	}

	values := inFlightValues(token)
	values[":pending"] = &types.AttributeValueMemberS{Value: string(StatusPending)}
	values[":at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(at))}
	values[":now"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(attempt.EndedAt))}
	values[":err"] = &types.AttributeValueMemberS{Value: attempt.Error}
	values[":kind"] = &types.AttributeValueMemberS{Value: attempt.ErrorKind}
	values[":attempt"] = &types.AttributeValueMemberL{Value: attemptAV}
	values[":empty"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       s.key(id),
		UpdateExpression: aws.String(
			"SET #s = :pending, scheduledAtMs = :at, lastError = :err, lastErrorKind = :kind, updatedAtMs = :now, " +
				"attempts = list_append(if_not_exists(attempts, :empty), :attempt) REMOVE claimToken"),
		ConditionExpression:       aws.String(inFlightCondition),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if conditionFailed(err) {
			return s.classifyCASFailure(ctx, id)
		}
		return fmt.Errorf("reschedule %s: %w", id, err)
	}

	log.Info().
		Str("jobId", id).
		Time("nextAttemptAt", at).
		Str("error", attempt.Error).
		Msg("Job rescheduled after retryable failure")
	return nil
}

func (s *DynamoStore) MarkFailed(ctx context.Context, id, token string, attempt AttemptRecord, now time.Time) error {
	attemptAV, err := attributevalue.MarshalList([]dynamoAttempt{toDynamoAttempt(attempt)})
	if err != nil {
		return fmt.Errorf("mark failed %s: marshal attempt: %w", id, err)
	}

	values := inFlightValues(token)
	values[":failed"] = &types.AttributeValueMemberS{Value: string(StatusFailed)}
	values[":now"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(now))}
	values[":err"] = &types.AttributeValueMemberS{Value: attempt.Error}
	values[":kind"] = &types.AttributeValueMemberS{Value: attempt.ErrorKind}
	values[":attempt"] = &types.AttributeValueMemberL{Value: attemptAV}
	values[":empty"] = &types.AttributeValueMemberL{Value: []types.AttributeValue{}}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       s.key(id),
		UpdateExpression: aws.String(
			"SET #s = :failed, lastError = :err, lastErrorKind = :kind, updatedAtMs = :now, " +
				"attempts = list_append(if_not_exists(attempts, :empty), :attempt) REMOVE claimToken"),
		ConditionExpression:       aws.String(inFlightCondition),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if conditionFailed(err) {
			return s.classifyCASFailure(ctx, id)
		}
		return fmt.Errorf("mark failed %s: %w", id, err)
	}

	log.Warn().
		Str("jobId", id).
		Str("error", attempt.Error).
		Str("kind", attempt.ErrorKind).
		Msg("Job failed terminally")
	return nil
}

func (s *DynamoStore) MarkPublished(ctx context.Context, id, token, publishedAssetID, permalink string, now time.Time) error {
	// The claim token is kept on the published record so a confirmation
	// retry with the same token passes the condition and lands in the
	// already-published branch instead of erroring.
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.key(id),
		UpdateExpression: aws.String("SET #s = :published, publishedAssetId = :aid, permalink = :link, updatedAtMs = :now"),
		ConditionExpression: aws.String(
			"claimToken = :tok AND (#s = :publishing OR (#s = :published AND publishedAssetId = :aid))"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tok":       &types.AttributeValueMemberS{Value: token},
			":published": &types.AttributeValueMemberS{Value: string(StatusPublished)},
			":publishing": &types.AttributeValueMemberS{Value: string(StatusPublishing)},
			":aid":       &types.AttributeValueMemberS{Value: publishedAssetID},
			":link":      &types.AttributeValueMemberS{Value: permalink},
			":now":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(now))},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			// Absorb: already published with the same asset id.
			dj, getErr := s.getJob(ctx, id)
			if getErr == nil && Status(dj.Status) == StatusPublished && dj.PublishedAssetID == publishedAssetID {
				return nil
			}
			if errors.Is(getErr, ErrNotFound) {
				return ErrNotFound
			}
			return ErrStaleClaim
		}
		return fmt.Errorf("mark published %s: %w", id, err)
	}

	log.Info().
		Str("jobId", id).
		Str("publishedAssetId", publishedAssetID).
		Str("permalink", permalink).
		Msg("Job published")
	return nil
}

// --- Operator queries ---

func (s *DynamoStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*JobRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String(statusIndex),
		KeyConditionExpression: aws.String("#s = :st"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: string(status)},
		},
	}

	var recs []*JobRecord
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list by status %s: %w", status, err)
		}
		for _, item := range result.Items {
			var dj dynamoJob
			if err := attributevalue.UnmarshalMap(item, &dj); err != nil {
				log.Warn().Err(err).Msg("Failed to unmarshal job record, skipping")
				continue
			}
			id := ""
			if pkAttr, ok := item["PK"].(*types.AttributeValueMemberS); ok {
				id = strings.TrimPrefix(pkAttr.Value, pkPrefix)
			}
			recs = append(recs, dj.toRecord(id))
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Requeue reopens a Failed record: back to Pending with a fresh schedule.
// AttemptCount is kept so the audit trail stays monotonic. Operator
// surface, not part of JobStore — the executor never reopens terminal
// records on its own.
func (s *DynamoStore) Requeue(ctx context.Context, id string, at time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(id),
		UpdateExpression:         aws.String("SET #s = :pending, scheduledAtMs = :at, updatedAtMs = :now REMOVE claimToken"),
		ConditionExpression:      aws.String("#s = :failed"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
			":failed":  &types.AttributeValueMemberS{Value: string(StatusFailed)},
			":at":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(at))},
			":now":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", toMs(time.Now()))},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			dj, getErr := s.getJob(ctx, id)
			if errors.Is(getErr, ErrNotFound) {
				return ErrNotFound
			}
			if getErr == nil && Status(dj.Status) == StatusPublished {
				return ErrTerminal
			}
			return fmt.Errorf("requeue %s: job is not failed", id)
		}
		return fmt.Errorf("requeue %s: %w", id, err)
	}

	log.Info().Str("jobId", id).Time("nextAttemptAt", at).Msg("Failed job requeued")
	return nil
}
