// internal/formfill/runner_test.go
package formfill

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRunner(factory SessionFactory, opts ...Option) *Runner {
	opts = append([]Option{WithClock(fixedClock()), WithRunIDs(func() string { return "run-1" })}, opts...)
	return NewRunner(factory, zap.NewNop(), opts...)
}

func TestRun_AllTargetsSucceed(t *testing.T) {
	defer goleak.VerifyNone(t)

	factory := newFakeFactory()
	runner := newTestRunner(factory)
	targets := NewTargets([]string{"210072", "210071"}, "Makai")

	result, err := runner.Run(context.Background(), targets, attendancePlan())
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.Equal(t, BatchCompleted, result.Status)
	assert.NoError(t, result.Err)
	assert.Equal(t, StateCompleted, runner.State())
	assert.Equal(t, "run-1", result.RunID)

	want := []string{
		"start#1",
		"open#1 " + testFormURL,
		"type#1 field1=210072",
		"click#1 attendanceOption",
		"click#1 durationOption",
		"click#1 submit",
		"close#1",
		"start#2",
		"open#2 " + testFormURL,
		"type#2 field1=210071",
		"click#2 attendanceOption",
		"click#2 durationOption",
		"click#2 submit",
		"close#2",
	}
	if diff := cmp.Diff(want, factory.Log()); diff != "" {
		t.Errorf("unexpected session call sequence (-want +got):\n%s", diff)
	}

	opened, closed := factory.Counts()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, closed)

	require.Len(t, result.Targets, 2)
	for i, tr := range result.Targets {
		assert.Equal(t, TargetSubmitted, tr.Status)
		assert.Equal(t, i, tr.Target.Index)
		assert.Equal(t, fmt.Sprintf("session-%d", i+1), tr.SessionID)
	}
}

func TestRun_FirstTargetLocatorFailureAborts(t *testing.T) {
	factory := newFakeFactory()
	factory.findErr[1] = map[string]error{"field1": errors.New("no such element")}
	runner := newTestRunner(factory)
	targets := NewTargets([]string{"210072", "210071"}, "Makai")

	result, err := runner.Run(context.Background(), targets, attendancePlan())
	require.NoError(t, err)

	assert.False(t, result.Success())
	assert.Equal(t, BatchAborted, result.Status)
	assert.Equal(t, StateAborted, runner.State())

	var locErr *ElementLocatorError
	require.ErrorAs(t, result.Err, &locErr)
	assert.Equal(t, "student id", locErr.Step)
	assert.Equal(t, "field1", locErr.Locator.Value)

	var targetErr *TargetError
	require.ErrorAs(t, result.Err, &targetErr)
	assert.Equal(t, "210072", targetErr.Identifier)

	opened, closed := factory.Counts()
	assert.Equal(t, 1, opened, "second target's session must never be opened")
	assert.Equal(t, 1, closed)
	assert.NotContains(t, factory.Log(), "start#2")

	require.Len(t, result.Targets, 2)
	assert.Equal(t, TargetFailed, result.Targets[0].Status)
	assert.Equal(t, TargetSkipped, result.Targets[1].Status)
}

func TestRun_KthFailureStopsLaterTargets(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	for k := 1; k <= len(ids); k++ {
		t.Run(fmt.Sprintf("fail at %d", k), func(t *testing.T) {
			factory := newFakeFactory()
			factory.findErr[k] = map[string]error{"submit": errors.New("detached node")}
			runner := newTestRunner(factory)

			result, err := runner.Run(context.Background(), NewTargets(ids, "ref"), attendancePlan())
			require.NoError(t, err)
			assert.False(t, result.Success())

			opened, closed := factory.Counts()
			assert.Equal(t, k, opened)
			assert.Equal(t, k, closed)
			for n := k + 1; n <= len(ids); n++ {
				assert.NotContains(t, factory.Log(), fmt.Sprintf("start#%d", n))
			}

			submitted, failed, skipped := result.Counts()
			assert.Equal(t, k-1, submitted)
			assert.Equal(t, 1, failed)
			assert.Equal(t, len(ids)-k, skipped)
		})
	}
}

func TestRun_SessionsNeverLeak(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		inject func(f *fakeFactory)
	}{
		{"start fails", func(f *fakeFactory) { f.startErr[2] = boom }},
		{"open fails", func(f *fakeFactory) { f.openErr[2] = boom }},
		{"type fails", func(f *fakeFactory) { f.findErr[2] = map[string]error{"field1": boom} }},
		{"click fails", func(f *fakeFactory) { f.findErr[3] = map[string]error{"durationOption": boom} }},
		{"close fails", func(f *fakeFactory) { f.closeErr[1] = boom }},
		{"no failure", func(f *fakeFactory) {}},
	}

	for _, tt := range tests {
		for _, policy := range []FailurePolicy{PolicyAbort, PolicyContinue} {
			t.Run(fmt.Sprintf("%s/%s", tt.name, policy), func(t *testing.T) {
				factory := newFakeFactory()
				tt.inject(factory)
				runner := newTestRunner(factory, WithPolicy(policy))

				_, err := runner.Run(context.Background(), NewTargets([]string{"1", "2", "3"}, "r"), attendancePlan())
				require.NoError(t, err)

				opened, closed := factory.Counts()
				assert.Equal(t, opened, closed, "every opened session must be closed")
			})
		}
	}
}

func TestRun_ContinuePolicyAttemptsEveryTarget(t *testing.T) {
	factory := newFakeFactory()
	factory.findErr[2] = map[string]error{"attendanceOption": errors.New("gone")}
	runner := newTestRunner(factory, WithPolicy(PolicyContinue))

	result, err := runner.Run(context.Background(), NewTargets([]string{"1", "2", "3"}, "r"), attendancePlan())
	require.NoError(t, err)

	assert.Equal(t, BatchAborted, result.Status)
	opened, _ := factory.Counts()
	assert.Equal(t, 3, opened)

	statuses := []TargetStatus{}
	for _, tr := range result.Targets {
		statuses = append(statuses, tr.Status)
	}
	assert.Equal(t, []TargetStatus{TargetSubmitted, TargetFailed, TargetSubmitted}, statuses)

	var targetErr *TargetError
	require.ErrorAs(t, result.Err, &targetErr)
	assert.Equal(t, 1, targetErr.Index)
}

func TestRun_ContinuePolicyJoinsErrors(t *testing.T) {
	factory := newFakeFactory()
	first := errors.New("first")
	second := errors.New("second")
	factory.startErr[1] = first
	factory.startErr[3] = second
	runner := newTestRunner(factory, WithPolicy(PolicyContinue))

	result, err := runner.Run(context.Background(), NewTargets([]string{"1", "2", "3"}, "r"), attendancePlan())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, first)
	assert.ErrorIs(t, result.Err, second)

	var sessErr *SessionError
	require.ErrorAs(t, result.Err, &sessErr)
	assert.Equal(t, "start", sessErr.Op)
}

func TestRun_TypeStepFillsEveryMatch(t *testing.T) {
	factory := newFakeFactory()
	factory.elements["field1"] = 2
	runner := newTestRunner(factory)

	_, err := runner.Run(context.Background(), NewTargets([]string{"42"}, "r"), attendancePlan())
	require.NoError(t, err)

	count := 0
	for _, line := range factory.Log() {
		if line == "type#1 field1=42" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestRun_TypeStepWithNoMatches(t *testing.T) {
	factory := newFakeFactory()
	factory.elements["field1"] = 0
	runner := newTestRunner(factory)

	result, err := runner.Run(context.Background(), NewTargets([]string{"42"}, "r"), attendancePlan())
	require.NoError(t, err)

	var locErr *ElementLocatorError
	require.ErrorAs(t, result.Err, &locErr)
	assert.Equal(t, 0, locErr.Found)
	assert.Contains(t, result.Err.Error(), "found 0 elements")
}

func TestRun_ResolvesStepInputs(t *testing.T) {
	factory := newFakeFactory()
	plan := FormFieldPlan{
		URL: testFormURL,
		Steps: []Step{
			{Action: ActionType, Locator: CSS("#id"), Input: InputIdentifier},
			{Action: ActionType, Locator: CSS("#ref"), Input: InputReference},
			{Action: ActionType, Locator: CSS("#note"), Input: InputLiteral, Text: "present"},
		},
	}

	_, err := newTestRunner(factory).Run(context.Background(), NewTargets([]string{"7"}, "Makai"), plan)
	require.NoError(t, err)

	log := factory.Log()
	assert.Contains(t, log, "type#1 #id=7")
	assert.Contains(t, log, "type#1 #ref=Makai")
	assert.Contains(t, log, "type#1 #note=present")
}

func TestRun_OpenFailureIsNavigationError(t *testing.T) {
	factory := newFakeFactory()
	factory.openErr[1] = context.DeadlineExceeded
	result, err := newTestRunner(factory).Run(context.Background(), NewTargets([]string{"1"}, "r"), attendancePlan())
	require.NoError(t, err)

	var navErr *NavigationError
	require.ErrorAs(t, result.Err, &navErr)
	assert.Equal(t, "open", navErr.Phase)
	assert.Equal(t, testFormURL, navErr.URL)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
}

func TestRun_ReadinessLocator(t *testing.T) {
	ready := XPath("//form")

	t.Run("waits for the locator", func(t *testing.T) {
		factory := newFakeFactory()
		plan := attendancePlan()
		plan.Readiness = Readiness{Locator: &ready, Timeout: time.Second}

		result, err := newTestRunner(factory).Run(context.Background(), NewTargets([]string{"1"}, "r"), plan)
		require.NoError(t, err)
		assert.True(t, result.Success())
		assert.Equal(t, "wait#1 //form", factory.Log()[2])
	})

	t.Run("timeout becomes a navigation error", func(t *testing.T) {
		factory := newFakeFactory()
		factory.waitErr = context.DeadlineExceeded
		plan := attendancePlan()
		plan.Readiness = Readiness{Locator: &ready, Timeout: time.Second}

		result, err := newTestRunner(factory).Run(context.Background(), NewTargets([]string{"1", "2"}, "r"), plan)
		require.NoError(t, err)

		var navErr *NavigationError
		require.ErrorAs(t, result.Err, &navErr)
		assert.Equal(t, "ready", navErr.Phase)
		opened, closed := factory.Counts()
		assert.Equal(t, 1, opened)
		assert.Equal(t, 1, closed)
	})
}

func TestRun_SettleDelay(t *testing.T) {
	factory := newFakeFactory()
	plan := attendancePlan()
	plan.Readiness = Readiness{SettleDelay: 30 * time.Millisecond}

	start := time.Now()
	result, err := NewRunner(factory, zap.NewNop()).Run(context.Background(), NewTargets([]string{"1", "2"}, "r"), plan)
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRun_Confirmation(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		factory := newFakeFactory()
		factory.pageText = "Your response has been recorded."
		plan := attendancePlan()
		plan.Confirmation = Confirmation{Text: "response has been recorded", Timeout: time.Second}

		result, err := newTestRunner(factory).Run(context.Background(), NewTargets([]string{"1"}, "r"), plan)
		require.NoError(t, err)
		assert.True(t, result.Success())
	})

	t.Run("not confirmed", func(t *testing.T) {
		factory := newFakeFactory()
		factory.pageText = "This is a required question"
		plan := attendancePlan()
		plan.Confirmation = Confirmation{Text: "response has been recorded", Timeout: 50 * time.Millisecond}

		result, err := newTestRunner(factory).Run(context.Background(), NewTargets([]string{"1"}, "r"), plan)
		require.NoError(t, err)

		var navErr *NavigationError
		require.ErrorAs(t, result.Err, &navErr)
		assert.Equal(t, "confirm", navErr.Phase)
		assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
	})
}

func TestRun_CloseFailureAfterSuccess(t *testing.T) {
	factory := newFakeFactory()
	factory.closeErr[1] = errors.New("chrome did not exit")

	result, err := newTestRunner(factory).Run(context.Background(), NewTargets([]string{"1", "2"}, "r"), attendancePlan())
	require.NoError(t, err)

	var sessErr *SessionError
	require.ErrorAs(t, result.Err, &sessErr)
	assert.Equal(t, "close", sessErr.Op)
	assert.Equal(t, TargetFailed, result.Targets[0].Status)
	assert.Equal(t, TargetSkipped, result.Targets[1].Status)
}

func TestRun_CanceledContext(t *testing.T) {
	factory := newFakeFactory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestRunner(factory, WithPolicy(PolicyContinue)).Run(ctx, NewTargets([]string{"1", "2", "3"}, "r"), attendancePlan())
	require.NoError(t, err)

	assert.ErrorIs(t, result.Err, context.Canceled)
	opened, _ := factory.Counts()
	assert.Zero(t, opened)
	assert.Equal(t, TargetFailed, result.Targets[0].Status)
	assert.Equal(t, TargetSkipped, result.Targets[1].Status)
	assert.Equal(t, TargetSkipped, result.Targets[2].Status)
}

func TestRun_Preconditions(t *testing.T) {
	factory := newFakeFactory()
	runner := newTestRunner(factory)

	_, err := runner.Run(context.Background(), nil, attendancePlan())
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = runner.Run(context.Background(), NewTargets([]string{"1"}, "r"), FormFieldPlan{URL: testFormURL})
	assert.ErrorIs(t, err, ErrInvalidPlan)

	assert.Equal(t, StateIdle, runner.State())
	assert.Empty(t, factory.Log())
}

func TestRun_Recorder(t *testing.T) {
	factory := newFakeFactory()
	factory.findErr[2] = map[string]error{"submit": errors.New("gone")}
	rec := &memoryRecorder{err: errors.New("ledger offline")}

	observedCore, logs := observer.New(zapcore.WarnLevel)
	runner := NewRunner(factory, zap.New(observedCore), WithRecorder(rec), WithClock(fixedClock()))

	result, err := runner.Run(context.Background(), NewTargets([]string{"1", "2", "3"}, "r"), attendancePlan())
	require.NoError(t, err)

	require.Len(t, rec.targets, 3)
	assert.Equal(t, TargetSubmitted, rec.targets[0].Status)
	assert.Equal(t, TargetFailed, rec.targets[1].Status)
	assert.Equal(t, TargetSkipped, rec.targets[2].Status)
	require.Len(t, rec.batches, 1)
	assert.Same(t, result, rec.batches[0])

	assert.NotZero(t, logs.FilterMessage("Could not record target outcome.").Len(), "recorder failures are logged, not fatal")
	assert.Equal(t, 1, logs.FilterMessage("Could not record batch outcome.").Len())
}

func TestRun_LogsAbort(t *testing.T) {
	factory := newFakeFactory()
	factory.startErr[1] = errors.New("chrome not found")

	observedCore, logs := observer.New(zapcore.InfoLevel)
	runner := NewRunner(factory, zap.New(observedCore))

	_, err := runner.Run(context.Background(), NewTargets([]string{"1"}, "r"), attendancePlan())
	require.NoError(t, err)

	entries := logs.FilterMessage("Form batch aborted.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "formfill", entries[0].LoggerName)
}

func TestRun_MinInterval(t *testing.T) {
	factory := newFakeFactory()
	runner := NewRunner(factory, zap.NewNop(), WithMinInterval(25*time.Millisecond))

	start := time.Now()
	result, err := runner.Run(context.Background(), NewTargets([]string{"1", "2", "3"}, "r"), attendancePlan())
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}
