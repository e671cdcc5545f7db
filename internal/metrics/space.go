// Package metrics computes SPACE, FLOW and DORA aggregates over the
// canonical activity log. The engines are pure functions over activities;
// Service loads the activities from the store.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/nhle/orgpulse/internal/model"
)

// idealDevRatio is the development share of activity that scores a
// perfect balance.
const idealDevRatio = 0.7

// minBalanceScore is the score at both extremes, devRatio 0 and 1.
const minBalanceScore = 30

// SpaceMetrics are per-person activity and wellbeing indicators.
type SpaceMetrics struct {
	Email  string `json:"email"`
	Window Window `json:"window"`

	TotalActivities int `json:"totalActivities"`
	DevActivities   int `json:"devActivities"`
	CommActivities  int `json:"commActivities"`

	Commits        int `json:"commits"`
	PullRequests   int `json:"pullRequests"`
	Reviews        int `json:"reviews"`
	TicketUpdates  int `json:"ticketUpdates"`
	Messages       int `json:"messages"`
	TicketsCreated int `json:"ticketsCreated"`

	// ActivityBalanceScore is 100 at a 70/30 development/communication
	// split and 30 at either extreme.
	ActivityBalanceScore float64 `json:"activityBalanceScore"`

	// WorkloadVariance is the population standard deviation of daily
	// activity counts over every UTC day of the window.
	WorkloadVariance float64 `json:"workloadVariance"`

	CompletedTickets   int `json:"completedTickets"`
	PullRequestsMerged int `json:"pullRequestsMerged"`

	UniqueCollaborators int     `json:"uniqueCollaborators"`
	CollaborationScore  float64 `json:"collaborationScore"`

	PeakActivityHours []string `json:"peakActivityHours"`
	FocusTimeRatio    float64  `json:"focusTimeRatio"`
}

// BalanceScore scores how close devRatio is to the ideal split. The penalty
// is linear on each side of the ideal, scaled so that 0 and 1 both score
// minBalanceScore.
func BalanceScore(devRatio float64) float64 {
	devRatio = Clamp(devRatio, 0, 1)
	span := idealDevRatio
	if devRatio > idealDevRatio {
		span = 1 - idealDevRatio
	}
	dist := devRatio - idealDevRatio
	if dist < 0 {
		dist = -dist
	}
	score := 100 - dist/span*(100-minBalanceScore)
	return Round(Clamp(score, 0, 100), 1)
}

// Space computes SPACE metrics for the person owning email from their
// activities. Activities outside the window are ignored. ownEmails are the
// person's other addresses; like email they never count as collaborators.
func Space(email string, w Window, activities []model.Activity, ownEmails ...string) SpaceMetrics {
	email = model.NormalizeEmail(email)
	m := SpaceMetrics{
		Email:             email,
		Window:            w,
		PeakActivityHours: []string{},
	}

	daily := map[string]int{}
	hourCounts := map[int]int{}
	var hourOrder []int
	collaborators := map[string]bool{}

	for _, a := range activities {
		if !w.Contains(a.Timestamp) {
			continue
		}
		m.TotalActivities++

		switch a.Type {
		case model.ActivityCommit:
			m.Commits++
		case model.ActivityPullRequest:
			m.PullRequests++
			if isMergedPR(a) {
				m.PullRequestsMerged++
			}
		case model.ActivityReview:
			m.Reviews++
		case model.ActivityTicketUpdated:
			m.TicketUpdates++
		case model.ActivityTicketCreated:
			m.TicketsCreated++
		case model.ActivityStatusChange:
			if IsDoneStatus(a.MetaString(model.MetaToStatus)) {
				m.CompletedTickets++
			}
		case model.ActivityMessage:
			m.Messages++
			for _, e := range a.MetaStrings(model.MetaMentions) {
				collaborators[model.NormalizeEmail(e)] = true
			}
			for _, e := range a.MetaStrings(model.MetaRecipients) {
				collaborators[model.NormalizeEmail(e)] = true
			}
		}

		ts := a.Timestamp.UTC()
		daily[ts.Format(time.DateOnly)]++
		h := ts.Hour()
		if _, seen := hourCounts[h]; !seen {
			hourOrder = append(hourOrder, h)
		}
		hourCounts[h]++
	}

	m.DevActivities = m.Commits + m.PullRequests + m.Reviews + m.TicketUpdates
	m.CommActivities = m.Messages

	devRatio := ratio(m.DevActivities, m.TotalActivities)
	if m.TotalActivities > 0 {
		m.ActivityBalanceScore = BalanceScore(devRatio)
	}
	m.FocusTimeRatio = Round(devRatio, 2)

	m.WorkloadVariance = Round(StdDev(dailyCounts(w, daily)), 2)

	delete(collaborators, email)
	for _, e := range ownEmails {
		delete(collaborators, model.NormalizeEmail(e))
	}
	delete(collaborators, "")
	m.UniqueCollaborators = len(collaborators)
	m.CollaborationScore = Clamp(float64(m.UniqueCollaborators*10), 0, 100)

	sort.SliceStable(hourOrder, func(i, j int) bool {
		return hourCounts[hourOrder[i]] > hourCounts[hourOrder[j]]
	})
	for i := 0; i < len(hourOrder) && i < 3; i++ {
		m.PeakActivityHours = append(m.PeakActivityHours, fmt.Sprintf("%d:00", hourOrder[i]))
	}

	return m
}

// dailyCounts returns one count per UTC calendar day touched by the
// window, zero for days without activity.
func dailyCounts(w Window, daily map[string]int) []float64 {
	if !w.End.After(w.Start) {
		return nil
	}
	var counts []float64
	start := w.Start.UTC().Truncate(24 * time.Hour)
	for day := start; day.Before(w.End); day = day.AddDate(0, 0, 1) {
		counts = append(counts, float64(daily[day.Format(time.DateOnly)]))
	}
	return counts
}

func isMergedPR(a model.Activity) bool {
	if a.MetaBool(model.MetaMerged) {
		return true
	}
	return a.MetaString(model.MetaEventAction) == "closed" && a.MetaString(model.MetaPRState) == "merged"
}
