package metrics

import (
	"time"

	"github.com/nhle/orgpulse/internal/model"
)

// unknownBucket labels distribution entries without a value.
const unknownBucket = "Unknown"

// Distribution summarizes a set of durations in hours.
type Distribution struct {
	Samples      int     `json:"samples"`
	AverageHours float64 `json:"averageHours"`
	P50Hours     float64 `json:"p50Hours"`
	P90Hours     float64 `json:"p90Hours"`
}

// NewDistribution builds percentiles over hours.
func NewDistribution(hours []float64) Distribution {
	return Distribution{
		Samples:      len(hours),
		AverageHours: Round(Mean(hours), 1),
		P50Hours:     Round(Percentile(hours, 0.5), 1),
		P90Hours:     Round(Percentile(hours, 0.9), 1),
	}
}

// FlowMetrics are per-project delivery indicators derived from Jira.
type FlowMetrics struct {
	Project string `json:"project"`
	Window  Window `json:"window"`

	CreatedItems    int     `json:"createdItems"`
	CompletedItems  int     `json:"completedItems"`
	ActiveItems     int     `json:"activeItems"`
	VelocityPerWeek float64 `json:"velocityPerWeek"`

	// FlowTime covers completed tickets created in the window, from
	// creation to their first completing transition.
	FlowTime Distribution `json:"flowTime"`

	ByType     map[string]int `json:"byType"`
	ByPriority map[string]int `json:"byPriority"`
}

type ticketTrail struct {
	created   *time.Time
	completed *time.Time
}

// Flow computes FLOW metrics from the Jira activities of one project.
// Non-Jira activities and activities outside the window are ignored.
func Flow(project string, w Window, activities []model.Activity) FlowMetrics {
	m := FlowMetrics{
		Project:    project,
		Window:     w,
		ByType:     map[string]int{},
		ByPriority: map[string]int{},
	}

	tickets := map[string]*ticketTrail{}
	trail := func(id string) *ticketTrail {
		t, ok := tickets[id]
		if !ok {
			t = &ticketTrail{}
			tickets[id] = t
		}
		return t
	}

	for _, a := range activities {
		if a.Source != model.SourceJira || !w.Contains(a.Timestamp) {
			continue
		}
		id := a.MetaString(model.MetaTicketID)
		if id == "" {
			continue
		}
		ts := a.Timestamp

		switch a.Type {
		case model.ActivityTicketCreated:
			m.CreatedItems++
			m.ByType[bucket(a.MetaString(model.MetaIssueType))]++
			m.ByPriority[bucket(a.MetaString(model.MetaPriority))]++
			t := trail(id)
			if t.created == nil || ts.Before(*t.created) {
				t.created = &ts
			}
		case model.ActivityStatusChange:
			if !IsDoneStatus(a.MetaString(model.MetaToStatus)) {
				continue
			}
			t := trail(id)
			if t.completed == nil || ts.Before(*t.completed) {
				t.completed = &ts
			}
		}
	}

	var flowHours []float64
	for _, t := range tickets {
		if t.completed == nil {
			continue
		}
		m.CompletedItems++
		if t.created == nil {
			continue
		}
		if h := t.completed.Sub(*t.created).Hours(); h > 0 {
			flowHours = append(flowHours, h)
		}
	}

	weeks := w.Days() / 7
	if weeks < 1 {
		weeks = 1
	}
	m.VelocityPerWeek = Round(float64(m.CompletedItems)/weeks, 1)
	m.ActiveItems = max(0, m.CreatedItems-m.CompletedItems)
	m.FlowTime = NewDistribution(flowHours)
	return m
}

func bucket(v string) string {
	if v == "" {
		return unknownBucket
	}
	return v
}
