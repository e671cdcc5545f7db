package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/nhle/orgpulse/internal/model"
)

// leadTimeCapHours drops lead times of 30 days or more as unlinked noise.
const leadTimeCapHours = 720

// DeploymentFrequency counts deployments per day of the window.
type DeploymentFrequency struct {
	TotalDeployments int     `json:"totalDeployments"`
	PerDay           float64 `json:"perDay"`
	PerWeek          float64 `json:"perWeek"`
	Level            string  `json:"level"`
}

// LeadTime is the commit to deployment delay.
type LeadTime struct {
	Distribution
	Level string `json:"level"`
}

// ChangeFailureRate is the share of deployments that failed.
type ChangeFailureRate struct {
	FailedDeployments int     `json:"failedDeployments"`
	TotalDeployments  int     `json:"totalDeployments"`
	Percentage        float64 `json:"percentage"`
	Level             string  `json:"level"`
}

// MTTR is reported without incident data: zero hours, rated high and
// marked unavailable.
type MTTR struct {
	Hours     float64 `json:"hours"`
	Level     string  `json:"level"`
	Available bool    `json:"available"`
}

// DoraMetrics are per-project delivery health indicators derived from
// GitHub.
type DoraMetrics struct {
	Project string `json:"project"`
	Window  Window `json:"window"`

	Commits      int `json:"commits"`
	PullRequests int `json:"pullRequests"`
	Reviews      int `json:"reviews"`

	DeploymentFrequency DeploymentFrequency `json:"deploymentFrequency"`
	LeadTime            LeadTime            `json:"leadTime"`
	ChangeFailureRate   ChangeFailureRate   `json:"changeFailureRate"`
	MTTR                MTTR                `json:"mttr"`
}

// Dora computes DORA metrics from the GitHub activities of one project.
func Dora(project string, w Window, activities []model.Activity) DoraMetrics {
	m := DoraMetrics{
		Project: project,
		Window:  w,
		MTTR:    MTTR{Level: LevelHigh},
	}

	var commits, deployments []time.Time
	failed := 0
	for _, a := range activities {
		if a.Source != model.SourceGitHub || !w.Contains(a.Timestamp) {
			continue
		}
		switch a.Type {
		case model.ActivityCommit:
			m.Commits++
			commits = append(commits, a.Timestamp)
		case model.ActivityPullRequest:
			m.PullRequests++
		case model.ActivityReview:
			m.Reviews++
		case model.ActivityDeployment:
			deployments = append(deployments, a.Timestamp)
			if isFailedDeployment(a) {
				failed++
			}
		}
	}

	days := w.Days()
	if days < 1 {
		days = 1
	}
	perDay := float64(len(deployments)) / days
	m.DeploymentFrequency = DeploymentFrequency{
		TotalDeployments: len(deployments),
		PerDay:           Round(perDay, 2),
		PerWeek:          Round(perDay*7, 1),
		Level:            FrequencyLevel(perDay),
	}

	lead := leadTimes(commits, deployments)
	m.LeadTime = LeadTime{Distribution: NewDistribution(lead), Level: LevelLow}
	if len(lead) > 0 {
		m.LeadTime.Level = LeadTimeLevel(Percentile(lead, 0.5))
	}

	m.ChangeFailureRate = ChangeFailureRate{
		FailedDeployments: failed,
		TotalDeployments:  len(deployments),
		Level:             LevelLow,
	}
	if len(deployments) > 0 {
		pct := ratio(failed, len(deployments)) * 100
		m.ChangeFailureRate.Percentage = Round(pct, 1)
		m.ChangeFailureRate.Level = FailureRateLevel(pct)
	}

	return m
}

// leadTimes pairs every commit with the earliest deployment at or after
// it, considering only the latest deployment of each UTC day.
func leadTimes(commits, deployments []time.Time) []float64 {
	if len(commits) == 0 || len(deployments) == 0 {
		return nil
	}

	latest := map[string]time.Time{}
	for _, d := range deployments {
		day := d.UTC().Format(time.DateOnly)
		if cur, ok := latest[day]; !ok || d.After(cur) {
			latest[day] = d
		}
	}
	daily := make([]time.Time, 0, len(latest))
	for _, d := range latest {
		daily = append(daily, d)
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Before(daily[j]) })

	var out []float64
	for _, c := range commits {
		i := sort.Search(len(daily), func(i int) bool { return !daily[i].Before(c) })
		if i == len(daily) {
			continue
		}
		h := daily[i].Sub(c).Hours()
		if h < 0 || h >= leadTimeCapHours {
			continue
		}
		out = append(out, h)
	}
	return out
}

func isFailedDeployment(a model.Activity) bool {
	switch strings.ToLower(a.MetaString(model.MetaDeploymentState)) {
	case "failure", "error":
		return true
	}
	return false
}

// FrequencyLevel classifies deployments per day.
func FrequencyLevel(perDay float64) string {
	switch {
	case perDay >= 1:
		return LevelElite
	case perDay >= 0.14:
		return LevelHigh
	case perDay >= 0.03:
		return LevelMedium
	default:
		return LevelLow
	}
}

// LeadTimeLevel classifies a median lead time in hours.
func LeadTimeLevel(hours float64) string {
	switch {
	case hours <= 24:
		return LevelElite
	case hours <= 168:
		return LevelHigh
	case hours <= 720:
		return LevelMedium
	default:
		return LevelLow
	}
}

// FailureRateLevel classifies a change failure percentage.
func FailureRateLevel(pct float64) string {
	switch {
	case pct <= 5:
		return LevelElite
	case pct <= 10:
		return LevelHigh
	case pct <= 15:
		return LevelMedium
	default:
		return LevelLow
	}
}
