package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGoal(now time.Time) Goal {
	return Goal{
		ID:        "goal-1",
		UserID:    DefaultUser.ID,
		Title:     "Learn Go",
		Status:    StatusInProgress,
		Roadmap:   []string{"Week 1: syntax", "Week 2: concurrency"},
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Minute),
		Tasks: []Task{
			{ID: "t1", GoalID: "goal-1", Status: StatusInProgress},
			{ID: "t2", GoalID: "goal-1", Status: StatusNotStarted},
			{ID: "t3", GoalID: "goal-1", Status: StatusCompleted},
		},
	}
}

func TestTaskToggleTwiceReturnsToInProgress(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task := Task{ID: "t1", GoalID: "g", Status: StatusInProgress}

	once := task.Toggled(now)
	assert.Equal(t, StatusCompleted, once.Status)
	twice := once.Toggled(now.Add(time.Second))
	assert.Equal(t, StatusInProgress, twice.Status)
	assert.Equal(t, now.Add(time.Second), twice.UpdatedAt)
}

func TestTaskToggleFromNotStarted(t *testing.T) {
	now := time.Now()
	task := Task{Status: StatusNotStarted}
	once := task.Toggled(now)
	assert.Equal(t, StatusCompleted, once.Status)
	assert.Equal(t, StatusInProgress, once.Toggled(now).Status)
}

func TestWithTaskToggledDoesNotMutateReceiver(t *testing.T) {
	now := time.Now()
	g := sampleGoal(now)

	out, ok := g.WithTaskToggled("t1", now)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, out.Tasks[0].Status)
	assert.Equal(t, StatusInProgress, g.Tasks[0].Status)
	assert.Equal(t, now, out.UpdatedAt)

	_, ok = g.WithTaskToggled("missing", now)
	assert.False(t, ok)
}

func TestWithProgressSummary(t *testing.T) {
	now := time.Now()
	g := sampleGoal(now)
	out := g.WithProgressSummary("halfway", now)
	assert.Equal(t, "halfway", out.ProgressSummary)
	assert.Empty(t, g.ProgressSummary)
	assert.Equal(t, now, out.UpdatedAt)
}

func TestGoalValidate(t *testing.T) {
	now := time.Now()
	g := sampleGoal(now)
	require.NoError(t, g.Validate())

	bad := g.Clone()
	bad.UpdatedAt = bad.CreatedAt.Add(-time.Second)
	assert.Error(t, bad.Validate())

	bad = g.Clone()
	bad.Status = "DONE"
	assert.Error(t, bad.Validate())

	bad = g.Clone()
	bad.Tasks[1].GoalID = "other"
	assert.Error(t, bad.Validate())
}

func TestGoalCloneIsDeep(t *testing.T) {
	now := time.Now()
	g := sampleGoal(now)
	due := now.Add(24 * time.Hour)
	g.Tasks[0].DueDate = &due

	c := g.Clone()
	c.Roadmap[0] = "changed"
	c.Tasks[0].Status = StatusOnHold
	*c.Tasks[0].DueDate = now

	assert.Equal(t, "Week 1: syntax", g.Roadmap[0])
	assert.Equal(t, StatusInProgress, g.Tasks[0].Status)
	assert.Equal(t, due, *g.Tasks[0].DueDate)
}

func TestCountTasks(t *testing.T) {
	g := sampleGoal(time.Now())
	assert.Equal(t, 1, g.CountTasks(StatusInProgress))
	assert.Equal(t, 1, g.CountTasks(StatusCompleted))
	assert.Equal(t, 0, g.CountTasks(StatusOnHold))
}
