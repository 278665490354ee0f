/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package storesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/internal/apierror"
	redlock "github.com/blnkfinance/storesync/internal/lock"
	redis_db "github.com/blnkfinance/storesync/internal/redis-db"
	"github.com/blnkfinance/storesync/model"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Task types handled by the workers.
const (
	TypeEntitySync      = "storesync:entity_sync"
	TypeStockSync       = "storesync:stock_sync"
	TypeWebhookDelivery = "storesync:webhook"
	TypeIndexDocument   = "storesync:index"
	TypeScheduledSync   = "storesync:scheduled_sync"
)

var (
	// ErrJobPaused is returned by a worker that stopped at a checkpoint because
	// its job was paused. The task is archived and resumed later.
	ErrJobPaused = errors.New("job paused")
	// ErrJobCancelled is returned by a worker that stopped because its job was cancelled.
	ErrJobCancelled = errors.New("job cancelled")
)

// JobQueue is the gateway to the background job system.
type JobQueue interface {
	// EnqueueSync enqueues a job unless one for the same account and scope is
	// still active. created is false when the active job is returned instead.
	EnqueueSync(ctx context.Context, payload model.JobPayload) (job *model.SyncJob, created bool, err error)
	GetJob(ctx context.Context, jobID string) (*model.SyncJob, error)
	ActiveJobs(ctx context.Context, accountID string) ([]model.SyncJob, error)
	SetProgress(ctx context.Context, jobID string, pct int) error
	Pause(ctx context.Context, accountID string, target model.ControlRequest) ([]string, error)
	Resume(ctx context.Context, accountID string, target model.ControlRequest) ([]string, error)
	Cancel(ctx context.Context, accountID string, target model.ControlRequest) ([]string, error)
	ControlSignal(ctx context.Context, jobID string) (model.ControlSignal, error)
	// MarkPaused records that a running job archived itself on a pause signal.
	MarkPaused(ctx context.Context, jobID string) error
	QueueIndex(ctx context.Context, collection string, doc map[string]interface{}) error
	QueueEvent(ctx context.Context, event LifecycleEvent) error
}

// JobID is deterministic per account and scope, which lets the queue reject
// a second job for the same stream atomically.
func JobID(accountID string, scope model.Scope) string {
	return fmt.Sprintf("job_%s_%s", accountID, scope)
}

// Queue implements JobQueue over asynq. Progress and control signals live in
// a Redis hash per job next to the asynq task.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	states    *jobStates
	conf      config.QueueConfig
	// retention keeps finished tasks visible to the status reporter.
	retention time.Duration
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration, rdb redis.UniversalClient) (*Queue, error) {
	opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
		states:    newJobStates(rdb, time.Duration(conf.Queue.JobStateTTLSec)*time.Second),
		conf:      conf.Queue,
		retention: time.Hour,
	}, nil
}

func (q *Queue) Close() error {
	if err := q.Client.Close(); err != nil {
		return err
	}
	return q.Inspector.Close()
}

// route returns the queue and task type serving a scope.
func (q *Queue) route(scope model.Scope) (queue string, taskType string) {
	if _, ok := scope.EntityType(); ok {
		return q.conf.EntityQueue, TypeEntitySync
	}
	return q.conf.StockQueue, TypeStockSync
}

func (q *Queue) syncQueues() []string {
	return []string{q.conf.EntityQueue, q.conf.StockQueue}
}

func (q *Queue) EnqueueSync(ctx context.Context, payload model.JobPayload) (*model.SyncJob, bool, error) {
	ctx, span := tracer.Start(ctx, "Enqueue sync job")
	defer span.End()

	queue, taskType := q.route(payload.Scope)
	id := JobID(payload.AccountID, payload.Scope)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	enqueue := func() (*asynq.TaskInfo, error) {
		task := asynq.NewTask(taskType, data,
			asynq.TaskID(id),
			asynq.Queue(queue),
			asynq.MaxRetry(q.conf.MaxRetryAttempts),
			asynq.Retention(q.retention),
		)
		return q.Client.EnqueueContext(ctx, task)
	}

	info, err := enqueue()
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		var existing *asynq.TaskInfo
		info, existing, err = q.replaceLeftover(ctx, queue, id, enqueue)
		if existing != nil {
			job := q.toJob(ctx, existing)
			return &job, false, nil
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	if err := q.states.reset(ctx, id); err != nil {
		logrus.WithError(err).WithField("job_id", id).Warn("failed to reset job state")
	}
	logrus.WithFields(logrus.Fields{
		"job_id":     id,
		"account_id": payload.AccountID,
		"scope":      payload.Scope,
		"trigger":    payload.Trigger,
	}).Info("sync job enqueued")

	job := q.toJob(ctx, info)
	return &job, true, nil
}

// replaceLeftover swaps a finished run that still holds the job id for a new
// task. Dispatches racing on the same id take turns under a short lock; the
// ones that lose find the new task and join it instead.
func (q *Queue) replaceLeftover(ctx context.Context, queue, id string, enqueue func() (*asynq.TaskInfo, error)) (created, existing *asynq.TaskInfo, err error) {
	locker := redlock.NewLocker(q.states.client, "storesync:enqueue:"+id, uuid.NewString())
	if err := locker.WaitLock(ctx, 5*time.Second, 2*time.Second); err != nil {
		return nil, nil, err
	}
	defer func() { _ = locker.Unlock(context.WithoutCancel(ctx)) }()

	current, err := q.Inspector.GetTaskInfo(queue, id)
	switch {
	case err == nil && !q.isLeftover(ctx, current):
		return nil, current, nil
	case err == nil:
		if derr := q.Inspector.DeleteTask(queue, id); derr != nil && !errors.Is(derr, asynq.ErrTaskNotFound) {
			return nil, nil, derr
		}
	case !errors.Is(err, asynq.ErrTaskNotFound):
		return nil, nil, err
	}

	created, err = enqueue()
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// a plain enqueue took the id after the leftover was gone
		current, err = q.Inspector.GetTaskInfo(queue, id)
		if err != nil {
			return nil, nil, err
		}
		return nil, current, nil
	}
	return created, nil, err
}

// isLeftover reports whether a task holding a job id no longer occupies the
// single-flight slot. A paused job still does.
func (q *Queue) isLeftover(ctx context.Context, info *asynq.TaskInfo) bool {
	switch info.State {
	case asynq.TaskStateCompleted:
		return true
	case asynq.TaskStateArchived:
		paused, _ := q.states.isPaused(ctx, info.ID)
		return !paused
	}
	return false
}

func (q *Queue) GetJob(ctx context.Context, jobID string) (*model.SyncJob, error) {
	for _, queue := range q.syncQueues() {
		info, err := q.Inspector.GetTaskInfo(queue, jobID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return nil, err
		}
		job := q.toJob(ctx, info)
		return &job, nil
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "job not found: "+jobID, nil)
}

// ActiveJobs lists the queued, running and paused jobs of an account.
func (q *Queue) ActiveJobs(ctx context.Context, accountID string) ([]model.SyncJob, error) {
	jobs := []model.SyncJob{}
	for _, queue := range q.syncQueues() {
		listers := []func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error){
			q.Inspector.ListActiveTasks,
			q.Inspector.ListPendingTasks,
			q.Inspector.ListScheduledTasks,
			q.Inspector.ListRetryTasks,
			q.Inspector.ListArchivedTasks,
		}
		for _, list := range listers {
			infos, err := listAll(queue, list)
			if err != nil {
				return nil, err
			}
			for _, info := range infos {
				job := q.toJob(ctx, info)
				if job.AccountID != accountID || !job.IsActive() {
					continue
				}
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

const listPageSize = 200

func listAll(queue string, list func(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error)) ([]*asynq.TaskInfo, error) {
	var out []*asynq.TaskInfo
	for page := 1; ; page++ {
		infos, err := list(queue, asynq.PageSize(listPageSize), asynq.Page(page))
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, infos...)
		if len(infos) < listPageSize {
			return out, nil
		}
	}
}

func (q *Queue) toJob(ctx context.Context, info *asynq.TaskInfo) model.SyncJob {
	var payload model.JobPayload
	_ = json.Unmarshal(info.Payload, &payload)

	state, err := q.states.get(ctx, info.ID)
	if err != nil {
		logrus.WithError(err).WithField("job_id", info.ID).Debug("job state unavailable")
	}

	job := model.SyncJob{
		ID:        info.ID,
		QueueName: info.Queue,
		AccountID: payload.AccountID,
		Scope:     payload.Scope,
		Payload:   payload,
		State:     jobState(info.State, state.paused),
		Progress:  state.progress,
		LastError: info.LastErr,
	}
	if job.State == model.JobSuccess {
		job.Progress = 100
	}
	if !info.NextProcessAt.IsZero() {
		t := info.NextProcessAt
		job.EnqueuedAt = &t
	}
	return job
}

func jobState(state asynq.TaskState, paused bool) model.JobState {
	switch state {
	case asynq.TaskStateActive:
		return model.JobRunning
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry, asynq.TaskStateAggregating:
		return model.JobQueued
	case asynq.TaskStateArchived:
		if paused {
			return model.JobPaused
		}
		return model.JobFailed
	case asynq.TaskStateCompleted:
		return model.JobSuccess
	}
	return model.JobFailed
}

func (q *Queue) SetProgress(ctx context.Context, jobID string, pct int) error {
	return q.states.setProgress(ctx, jobID, pct)
}

func (q *Queue) ControlSignal(ctx context.Context, jobID string) (model.ControlSignal, error) {
	return q.states.signal(ctx, jobID)
}

func (q *Queue) MarkPaused(ctx context.Context, jobID string) error {
	return q.states.markPaused(ctx, jobID)
}

// targets resolves a control request into this account's jobs.
func (q *Queue) targets(ctx context.Context, accountID string, target model.ControlRequest) ([]model.SyncJob, error) {
	if target.JobID != "" {
		job, err := q.GetJob(ctx, target.JobID)
		if err != nil {
			return nil, err
		}
		if job.AccountID != accountID {
			// never reveal another account's job
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "job not found: "+target.JobID, nil)
		}
		return []model.SyncJob{*job}, nil
	}
	if target.QueueName == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "either queue_name or job_id is required", nil)
	}
	jobs, err := q.ActiveJobs(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var out []model.SyncJob
	for _, j := range jobs {
		if j.QueueName == target.QueueName {
			out = append(out, j)
		}
	}
	return out, nil
}

// Pause archives queued jobs and asks running ones to stop at their next checkpoint.
func (q *Queue) Pause(ctx context.Context, accountID string, target model.ControlRequest) ([]string, error) {
	jobs, err := q.targets(ctx, accountID, target)
	if err != nil {
		return nil, err
	}
	var affected []string
	for _, j := range jobs {
		switch j.State {
		case model.JobQueued:
			if err := q.Inspector.ArchiveTask(j.QueueName, j.ID); err != nil {
				return affected, err
			}
			if err := q.states.markPaused(ctx, j.ID); err != nil {
				return affected, err
			}
		case model.JobRunning:
			if err := q.states.setSignal(ctx, j.ID, model.SignalPause); err != nil {
				return affected, err
			}
		default:
			continue
		}
		affected = append(affected, j.ID)
	}
	return affected, nil
}

// Resume puts paused jobs back on their queue.
func (q *Queue) Resume(ctx context.Context, accountID string, target model.ControlRequest) ([]string, error) {
	jobs, err := q.targets(ctx, accountID, target)
	if err != nil {
		return nil, err
	}
	var affected []string
	for _, j := range jobs {
		switch j.State {
		case model.JobPaused:
			if err := q.states.clearPaused(ctx, j.ID); err != nil {
				return affected, err
			}
			if err := q.Inspector.RunTask(j.QueueName, j.ID); err != nil {
				return affected, err
			}
		case model.JobRunning:
			// a pause that has not been picked up yet is simply withdrawn
			if err := q.states.setSignal(ctx, j.ID, model.SignalNone); err != nil {
				return affected, err
			}
		default:
			continue
		}
		affected = append(affected, j.ID)
	}
	return affected, nil
}

// Cancel stops running jobs and removes queued or paused ones.
func (q *Queue) Cancel(ctx context.Context, accountID string, target model.ControlRequest) ([]string, error) {
	jobs, err := q.targets(ctx, accountID, target)
	if err != nil {
		return nil, err
	}
	var affected []string
	for _, j := range jobs {
		switch j.State {
		case model.JobRunning:
			if err := q.states.setSignal(ctx, j.ID, model.SignalCancel); err != nil {
				return affected, err
			}
			if err := q.Inspector.CancelProcessing(j.ID); err != nil {
				return affected, err
			}
		case model.JobQueued, model.JobPaused:
			if err := q.Inspector.DeleteTask(j.QueueName, j.ID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
				return affected, err
			}
			if err := q.states.clear(ctx, j.ID); err != nil {
				return affected, err
			}
		default:
			continue
		}
		affected = append(affected, j.ID)
	}
	return affected, nil
}

// QueueIndex enqueues a search document for indexing. It is a no-op when
// search is not configured.
func (q *Queue) QueueIndex(ctx context.Context, collection string, doc map[string]interface{}) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	if cfg.TypeSense.Dns == "" {
		return nil
	}

	payload, err := json.Marshal(indexPayload{Collection: collection, Document: doc})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeIndexDocument, payload, asynq.Queue(q.conf.IndexQueue), asynq.MaxRetry(3))
	_, err = q.Client.EnqueueContext(ctx, task)
	return err
}

// QueueEvent enqueues a lifecycle event for webhook delivery. It is a no-op
// when no webhook url is configured.
func (q *Queue) QueueEvent(ctx context.Context, event LifecycleEvent) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	if cfg.Notification.Webhook.Url == "" {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeWebhookDelivery, payload, asynq.Queue(q.conf.WebhookQueue), asynq.MaxRetry(q.conf.MaxRetryAttempts))
	_, err = q.Client.EnqueueContext(ctx, task)
	return err
}

// jobStates keeps per-job progress and control flags in a Redis hash.
type jobStates struct {
	client redis.UniversalClient
	ttl    time.Duration
}

type jobStateSnapshot struct {
	progress int
	signal   model.ControlSignal
	paused   bool
}

const (
	fieldProgress = "progress"
	fieldSignal   = "signal"
	fieldPaused   = "paused"
)

func newJobStates(client redis.UniversalClient, ttl time.Duration) *jobStates {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &jobStates{client: client, ttl: ttl}
}

func jobStateKey(jobID string) string {
	return "storesync:job:" + jobID
}

func (s *jobStates) write(ctx context.Context, jobID string, values ...interface{}) error {
	key := jobStateKey(jobID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *jobStates) reset(ctx context.Context, jobID string) error {
	key := jobStateKey(jobID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fieldProgress, 0)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *jobStates) setProgress(ctx context.Context, jobID string, pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return s.write(ctx, jobID, fieldProgress, pct)
}

func (s *jobStates) setSignal(ctx context.Context, jobID string, signal model.ControlSignal) error {
	return s.write(ctx, jobID, fieldSignal, string(signal))
}

func (s *jobStates) markPaused(ctx context.Context, jobID string) error {
	return s.write(ctx, jobID, fieldPaused, 1, fieldSignal, "")
}

func (s *jobStates) clearPaused(ctx context.Context, jobID string) error {
	return s.client.HDel(ctx, jobStateKey(jobID), fieldPaused, fieldSignal).Err()
}

func (s *jobStates) clear(ctx context.Context, jobID string) error {
	return s.client.Del(ctx, jobStateKey(jobID)).Err()
}

func (s *jobStates) signal(ctx context.Context, jobID string) (model.ControlSignal, error) {
	v, err := s.client.HGet(ctx, jobStateKey(jobID), fieldSignal).Result()
	if errors.Is(err, redis.Nil) {
		return model.SignalNone, nil
	}
	return model.ControlSignal(v), err
}

func (s *jobStates) isPaused(ctx context.Context, jobID string) (bool, error) {
	v, err := s.client.HGet(ctx, jobStateKey(jobID), fieldPaused).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return v == "1", err
}

func (s *jobStates) get(ctx context.Context, jobID string) (jobStateSnapshot, error) {
	var snap jobStateSnapshot
	values, err := s.client.HGetAll(ctx, jobStateKey(jobID)).Result()
	if err != nil {
		return snap, err
	}
	snap.progress, _ = strconv.Atoi(values[fieldProgress])
	snap.signal = model.ControlSignal(values[fieldSignal])
	snap.paused = values[fieldPaused] == "1"
	return snap, nil
}
