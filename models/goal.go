package models

import (
	"fmt"
	"time"
)

type GoalStatus string

const (
	StatusNotStarted GoalStatus = "NOT_STARTED"
	StatusInProgress GoalStatus = "IN_PROGRESS"
	StatusCompleted  GoalStatus = "COMPLETED"
	StatusOnHold     GoalStatus = "ON_HOLD"
)

func (s GoalStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusOnHold:
		return true
	}
	return false
}

type Task struct {
	ID          string     `json:"id"`
	GoalID      string     `json:"goalId"`
	Description string     `json:"description"`
	Status      GoalStatus `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Toggled flips a task between COMPLETED and IN_PROGRESS. Any status other
// than COMPLETED toggles to COMPLETED.
func (t Task) Toggled(now time.Time) Task {
	if t.Status == StatusCompleted {
		t.Status = StatusInProgress
	} else {
		t.Status = StatusCompleted
	}
	if now.After(t.UpdatedAt) {
		t.UpdatedAt = now
	}
	return t
}

type Goal struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          GoalStatus `json:"status"`
	Roadmap         []string   `json:"roadmap,omitempty"`
	ProgressSummary string     `json:"progressSummary,omitempty"`
	Tasks           []Task     `json:"tasks,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the goal.
func (g Goal) Clone() Goal {
	out := g
	if g.Roadmap != nil {
		out.Roadmap = append([]string(nil), g.Roadmap...)
	}
	if g.Tasks != nil {
		out.Tasks = make([]Task, len(g.Tasks))
		for i, t := range g.Tasks {
			if t.DueDate != nil {
				d := *t.DueDate
				t.DueDate = &d
			}
			out.Tasks[i] = t
		}
	}
	return out
}

// Validate checks the invariants a stored goal must hold.
func (g Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("goal id is required")
	}
	if !g.Status.Valid() {
		return fmt.Errorf("goal %s: invalid status %q", g.ID, g.Status)
	}
	if g.UpdatedAt.Before(g.CreatedAt) {
		return fmt.Errorf("goal %s: updatedAt precedes createdAt", g.ID)
	}
	for _, t := range g.Tasks {
		if t.GoalID != g.ID {
			return fmt.Errorf("task %s belongs to goal %s, not %s", t.ID, t.GoalID, g.ID)
		}
		if !t.Status.Valid() {
			return fmt.Errorf("task %s: invalid status %q", t.ID, t.Status)
		}
	}
	return nil
}

// WithTaskToggled returns a copy of the goal with the given task toggled and
// updatedAt refreshed. ok is false when no task has that id.
func (g Goal) WithTaskToggled(taskID string, now time.Time) (Goal, bool) {
	out := g.Clone()
	for i, t := range out.Tasks {
		if t.ID == taskID {
			out.Tasks[i] = t.Toggled(now)
			out.touch(now)
			return out, true
		}
	}
	return g, false
}

// WithProgressSummary returns a copy of the goal carrying the new summary.
func (g Goal) WithProgressSummary(summary string, now time.Time) Goal {
	out := g.Clone()
	out.ProgressSummary = summary
	out.touch(now)
	return out
}

// CountTasks returns how many tasks are in the given status.
func (g Goal) CountTasks(status GoalStatus) int {
	n := 0
	for _, t := range g.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

func (g *Goal) touch(now time.Time) {
	if now.After(g.UpdatedAt) {
		g.UpdatedAt = now
	}
}
