package alerts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

type fakeRuleStore struct {
	rules []domain.AlertRule
	orgs  []string
}

func (f *fakeRuleStore) RulesForOrg(_ context.Context, _ string) ([]domain.AlertRule, error) {
	return f.rules, nil
}

func (f *fakeRuleStore) OrgsWithEnabledRules(_ context.Context) ([]string, error) {
	return f.orgs, nil
}

type fakeScoreReader struct {
	stale []domain.AccountScore
}

func (f *fakeScoreReader) StaleAccounts(_ context.Context, _ string, _ time.Time) ([]domain.AccountScore, error) {
	return f.stale, nil
}

type notifyCall struct {
	n         domain.Notification
	accountID string
	kind      string
}

type fakeNotifier struct {
	calls   []notifyCall
	errKind string
}

func (f *fakeNotifier) CreateDeduped(_ context.Context, n domain.Notification, accountID, kind string) (bool, error) {
	if f.errKind != "" && kind == f.errKind {
		return false, errors.New("insert failed")
	}
	f.calls = append(f.calls, notifyCall{n, accountID, kind})
	return true, nil
}

type enqueued struct {
	lane  domain.Lane
	name  string
	jobID string
}

type fakeJobs struct {
	jobs []enqueued
}

func (f *fakeJobs) Enqueue(_ context.Context, lane domain.Lane, name, jobID string, _ interface{}) error {
	f.jobs = append(f.jobs, enqueued{lane, name, jobID})
	return nil
}

var testNow = time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)

func newTestService(rules *fakeRuleStore, scores *fakeScoreReader, notifier *fakeNotifier, jobs *fakeJobs) *Service {
	svc := NewService(rules, scores, notifier, jobs, domain.DefaultTierThresholds, 5*time.Minute)
	svc.now = func() time.Time { return testNow }
	return svc
}

func evalJob(t *testing.T, oldScore *int, newScore int) *domain.Job {
	t.Helper()
	payload := fmt.Sprintf(`{"kind":"tenant-task","organizationId":"org1","accountId":"acct1","newScore":%d`, newScore)
	if oldScore != nil {
		payload += fmt.Sprintf(`,"oldScore":%d`, *oldScore)
	}
	payload += "}"
	return &domain.Job{ID: "job-1", Lane: domain.LaneAlertEvaluation, Payload: []byte(payload)}
}

func intPtr(v int) *int { return &v }

func TestTriggeredCrossingSemantics(t *testing.T) {
	svc := newTestService(&fakeRuleStore{}, &fakeScoreReader{}, &fakeNotifier{}, &fakeJobs{})

	above := domain.AlertRule{Kind: domain.AlertScoreAbove, Threshold: 70, Enabled: true}
	below := domain.AlertRule{Kind: domain.AlertScoreBelow, Threshold: 30, Enabled: true}
	tier := domain.AlertRule{Kind: domain.AlertTierEntry, Tier: domain.TierHot, Enabled: true}

	tests := []struct {
		name   string
		rule   domain.AlertRule
		old    int
		new    int
		hadOld bool
		want   bool
	}{
		{"above fires on upward crossing", above, 60, 75, true, true},
		{"above fires landing exactly on threshold", above, 60, 70, true, true},
		{"above quiet while already above", above, 75, 90, true, false},
		{"above quiet below threshold", above, 10, 60, true, false},
		{"above treats missing old score as zero", above, 0, 75, false, true},
		{"below fires on downward crossing", below, 40, 25, true, true},
		{"below quiet while already below", below, 25, 10, true, false},
		{"below never fires for a first score", below, 0, 10, false, false},
		{"tier entry fires on entering HOT", tier, 70, 85, true, true},
		{"tier entry quiet while staying HOT", tier, 82, 95, true, false},
		{"tier entry fires for a first HOT score", tier, 0, 85, false, true},
		{"tier entry quiet outside the tier", tier, 10, 60, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.triggered(tt.rule, tt.old, tt.new, tt.hadOld)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleEvaluateJobFiresMatchingRules(t *testing.T) {
	rules := &fakeRuleStore{rules: []domain.AlertRule{
		{ID: "r1", OrganizationID: "org1", Kind: domain.AlertScoreAbove, Threshold: 70, Enabled: true},
		{ID: "r2", OrganizationID: "org1", Kind: domain.AlertScoreBelow, Threshold: 30, Enabled: true},
		{ID: "r3", OrganizationID: "org1", Kind: domain.AlertScoreAbove, Threshold: 70, Enabled: false},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(rules, &fakeScoreReader{}, notifier, &fakeJobs{})

	err := svc.HandleEvaluateJob(context.Background(), evalJob(t, intPtr(60), 75))
	require.NoError(t, err)

	// Only the enabled score_above rule crossed.
	require.Len(t, notifier.calls, 1)
	call := notifier.calls[0]
	assert.Equal(t, "alert:r1", call.kind)
	assert.Equal(t, "acct1", call.accountID)
	assert.Equal(t, domain.NotificationScoreAlert, call.n.Type)
	assert.Contains(t, call.n.Title, "crossed above 70")
}

func TestHandleEvaluateJobRuleFailureIsolated(t *testing.T) {
	rules := &fakeRuleStore{rules: []domain.AlertRule{
		{ID: "r1", Kind: domain.AlertScoreAbove, Threshold: 70, Enabled: true},
		{ID: "r2", Kind: domain.AlertTierEntry, Tier: domain.TierHot, Enabled: true},
	}}
	notifier := &fakeNotifier{errKind: "alert:r1"}
	svc := newTestService(rules, &fakeScoreReader{}, notifier, &fakeJobs{})

	err := svc.HandleEvaluateJob(context.Background(), evalJob(t, intPtr(60), 85))
	require.NoError(t, err)

	// r1's notification failed but r2 still fired.
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "alert:r2", notifier.calls[0].kind)
}

func TestHandleEvaluateJobRejectsMalformedPayload(t *testing.T) {
	svc := newTestService(&fakeRuleStore{}, &fakeScoreReader{}, &fakeNotifier{}, &fakeJobs{})

	// Tenant task without a new score is not evaluable.
	job := &domain.Job{ID: "job-1", Payload: []byte(`{"kind":"tenant-task","organizationId":"org1"}`)}
	assert.Error(t, svc.HandleEvaluateJob(context.Background(), job))
}

func TestHandleCheckJobFanOut(t *testing.T) {
	rules := &fakeRuleStore{orgs: []string{"org1", "org2"}}
	jobs := &fakeJobs{}
	svc := newTestService(rules, &fakeScoreReader{}, &fakeNotifier{}, jobs)

	job := &domain.Job{Payload: []byte(`{"kind":"scheduled-fanout"}`)}
	require.NoError(t, svc.HandleCheckJob(context.Background(), job))

	require.Len(t, jobs.jobs, 2)
	for i, orgID := range rules.orgs {
		assert.Equal(t, domain.LaneAlertCheck, jobs.jobs[i].lane)
		assert.Equal(t, "alert.check", jobs.jobs[i].name)
		assert.Equal(t, queue.FanoutJobID("alert-check", orgID, testNow, 5*time.Minute), jobs.jobs[i].jobID)
	}
}

func TestHandleCheckJobFlagsQuietAccounts(t *testing.T) {
	lastSignal := testNow.AddDate(0, 0, -20)
	scores := &fakeScoreReader{stale: []domain.AccountScore{
		{OrganizationID: "org1", AccountID: "acct1", Score: 72, Tier: domain.TierWarm, LastSignalAt: &lastSignal},
	}}
	notifier := &fakeNotifier{}
	svc := newTestService(&fakeRuleStore{}, scores, notifier, &fakeJobs{})

	job := &domain.Job{Payload: []byte(`{"kind":"tenant-task","organizationId":"org1"}`)}
	require.NoError(t, svc.HandleCheckJob(context.Background(), job))

	require.Len(t, notifier.calls, 1)
	call := notifier.calls[0]
	assert.Equal(t, "inactivity", call.kind)
	assert.Equal(t, "acct1", call.accountID)
	assert.Equal(t, "Engaged account going quiet", call.n.Title)
	assert.Contains(t, call.n.Body, `"score":72`)
}
