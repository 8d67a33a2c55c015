package scheduler

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/coreybb/horoscope/alerting"
	"github.com/coreybb/horoscope/gemini"
	"github.com/coreybb/horoscope/metrics"
	"github.com/coreybb/horoscope/models"
	"github.com/coreybb/horoscope/runlock"
	"github.com/coreybb/horoscope/webutil"
)

const (
	lockKey             = "horoscope:daily-reading:run"
	generationKindDaily = "daily"

	msgFetchFailed    = "Error fetching active subscriptions"
	msgNoSubscribers  = "No active subscriptions"
	msgAlreadyRunning = "Daily reading run already in progress"
)

// SubscriptionSource lists the user ids of active subscriptions.
type SubscriptionSource interface {
	ActiveSubscriberIDs(ctx context.Context) ([]string, error)
}

// ReadingWriter appends a reading for a user.
type ReadingWriter interface {
	CreateReading(ctx context.Context, userID, text string) (*models.Reading, error)
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Dispatcher fans a short daily reading out to every active subscriber.
type Dispatcher struct {
	subscriptions SubscriptionSource
	readings      ReadingWriter
	generator     Generator
	prompt        string
	cronSecret    string
	notifier      alerting.Notifier
	lock          runlock.Lock
	now           func() time.Time
}

type Option func(*Dispatcher)

func WithNotifier(n alerting.Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

func WithLock(l runlock.Lock) Option {
	return func(d *Dispatcher) { d.lock = l }
}

// New creates a Dispatcher. prompt is sent unchanged for every user.
func New(
	subscriptions SubscriptionSource,
	readings ReadingWriter,
	generator Generator,
	prompt string,
	cronSecret string,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		subscriptions: subscriptions,
		readings:      readings,
		generator:     generator,
		prompt:        prompt,
		cronSecret:    cronSecret,
		notifier:      alerting.LogNotifier{},
		lock:          runlock.NoopLock{},
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type dailyReadingResponse struct {
	Message   string `json:"message"`
	Eligible  int    `json:"eligible"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// HandleDailyReading is the HTTP trigger for a run. The caller must present
// the cron secret as a bearer token. The run is detached from the request so
// a dropped connection does not stop it halfway through the batch.
func (d *Dispatcher) HandleDailyReading(w http.ResponseWriter, r *http.Request) error {
	if !d.authorized(r) {
		return webutil.ErrUnauthorized("")
	}

	slog.Info("Daily reading run triggered via HTTP")

	result, err := d.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		return webutil.NewHTTPErrorWrap(http.StatusInternalServerError, msgFetchFailed, err)
	}

	resp := dailyReadingResponse{
		Eligible:  result.Eligible,
		Succeeded: result.Succeeded,
		Failed:    result.Failed(),
		Skipped:   result.Skipped,
	}
	switch {
	case result.Skipped:
		resp.Message = msgAlreadyRunning
	case result.Eligible == 0:
		resp.Message = msgNoSubscribers
	default:
		resp.Message = fmt.Sprintf("Daily readings generated for %d active users.", result.Succeeded)
	}
	webutil.RespondWithJSON(w, http.StatusOK, resp)
	return nil
}

// authorized accepts only the exact header "Bearer <secret>".
func (d *Dispatcher) authorized(r *http.Request) bool {
	if d.cronSecret == "" {
		return false
	}
	header := r.Header.Get(webutil.HeaderAuthorization)
	return subtle.ConstantTimeCompare([]byte(header), []byte("Bearer "+d.cronSecret)) == 1
}

// Run performs one daily reading pass over the active subscribers. Users are
// served one at a time; a failure for one user is recorded and the loop moves
// on. The only error returned is a failure to list subscribers.
func (d *Dispatcher) Run(ctx context.Context) (models.DispatchResult, error) {
	result := models.DispatchResult{StartedAt: d.now()}

	release, acquired, err := d.lock.TryAcquire(ctx, lockKey)
	switch {
	case err != nil:
		slog.Warn("Run lock unavailable, continuing without it", "error", err)
	case !acquired:
		slog.Info("Another daily reading run holds the lock, skipping")
		result.Skipped = true
		result.FinishedAt = d.now()
		metrics.RecordDispatchRun(metrics.OutcomeSkipped, 0)
		return result, nil
	default:
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				slog.Warn("Failed to release run lock", "error", err)
			}
		}()
	}

	userIDs, err := d.subscriptions.ActiveSubscriberIDs(ctx)
	if err != nil {
		result.FinishedAt = d.now()
		metrics.RecordDispatchRun(metrics.OutcomeFailed, result.FinishedAt.Sub(result.StartedAt))
		slog.Error("Failed to fetch active subscriptions", "error", err)
		return result, fmt.Errorf("failed to fetch active subscriptions: %w", err)
	}

	userIDs = uniqueUserIDs(userIDs)
	result.Eligible = len(userIDs)

	if len(userIDs) == 0 {
		slog.Info(msgNoSubscribers)
		result.FinishedAt = d.now()
		metrics.RecordDispatchRun(metrics.OutcomeCompleted, result.FinishedAt.Sub(result.StartedAt))
		return result, nil
	}

	slog.Info("Starting daily reading run", "eligible", len(userIDs))

	for _, userID := range userIDs {
		if failure := d.processUser(ctx, userID, &result); failure != nil {
			result.Failures = append(result.Failures, *failure)
			continue
		}
		result.Succeeded++
	}

	result.FinishedAt = d.now()
	metrics.RecordDispatchRun(metrics.OutcomeCompleted, result.FinishedAt.Sub(result.StartedAt))
	metrics.RecordDispatchUsers(result)

	slog.Info("Finished daily reading run",
		"eligible", result.Eligible,
		"succeeded", result.Succeeded,
		"failed", result.Failed(),
		"credential_problem", result.CredentialProblem,
		"took", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, nil
}

// processUser generates and stores one reading. Returns nil on success.
func (d *Dispatcher) processUser(ctx context.Context, userID string, result *models.DispatchResult) *models.DispatchFailure {
	start := time.Now()
	text, err := d.generator.Generate(ctx, d.prompt)
	metrics.ObserveGeneration(generationKindDaily, start, err)
	if err != nil {
		slog.Error("Failed to generate daily reading", "user_id", userID, "error", err)
		if gemini.IsCredentialError(err) && !result.CredentialProblem {
			result.CredentialProblem = true
			slog.Error("CRITICAL: generation API key is invalid or exhausted", "error", err)
			d.alert(ctx, err)
		}
		return &models.DispatchFailure{UserID: userID, Stage: models.DispatchStageGenerate, Error: err.Error()}
	}

	if _, err := d.readings.CreateReading(ctx, userID, text); err != nil {
		slog.Error("Failed to store daily reading", "user_id", userID, "error", err)
		return &models.DispatchFailure{UserID: userID, Stage: models.DispatchStagePersist, Error: err.Error()}
	}
	return nil
}

func (d *Dispatcher) alert(ctx context.Context, cause error) {
	alert := alerting.Alert{
		Subject: "Daily readings: generation API key rejected",
		Body: fmt.Sprintf("The generation service rejected GOOGLE_AI_API_KEY during the daily reading run at %s.\n\n"+
			"Upstream error: %v\n\nRemaining users are still attempted; expect them to fail until the key is fixed.",
			d.now().Format(time.RFC3339), cause),
	}
	if gemini.IsQuotaError(cause) {
		alert.Subject = "Daily readings: generation quota exhausted or rate limited"
		alert.Body = fmt.Sprintf("The generation service refused requests made with GOOGLE_AI_API_KEY for quota or rate-limit reasons "+
			"during the daily reading run at %s.\n\nUpstream error: %v\n\n"+
			"Remaining users are still attempted. A short rate-limit spike clears on its own; an exhausted quota needs the plan or key changed.",
			d.now().Format(time.RFC3339), cause)
	}
	if err := d.notifier.Notify(ctx, alert); err != nil {
		slog.Error("Failed to send operator alert", "error", err)
	}
}

// StartCron schedules Run on a standard five-field cron expression in loc.
// A tick that fires while the previous run is still going is skipped.
func (d *Dispatcher) StartCron(schedule string, loc *time.Location) (stop func(), err error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err = c.AddFunc(schedule, func() {
		slog.Info("Daily reading run triggered by schedule", "schedule", schedule)
		if _, err := d.Run(context.Background()); err != nil {
			slog.Error("Scheduled daily reading run failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	c.Start()
	slog.Info("Daily reading schedule started", "schedule", schedule, "location", loc.String())

	return func() {
		<-c.Stop().Done()
	}, nil
}

// uniqueUserIDs keeps the first occurrence of each id and drops blanks.
func uniqueUserIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
