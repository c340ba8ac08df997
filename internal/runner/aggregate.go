package runner

import (
	"math"
	"sort"
	"strings"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

// FailurePattern is one failure category with its frequency
type FailurePattern struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Dashboard is the aggregate quality view of one run
type Dashboard struct {
	TotalItems    int `json:"total_items"`
	ExecutedItems int `json:"executed_items"`
	ErrorItems    int `json:"error_items"`

	LogicPassRate    float64            `json:"logic_pass_rate"`
	MetricAverages   map[string]float64 `json:"metric_averages,omitempty"`
	AverageLatencyMS float64            `json:"average_latency_ms"`

	FailurePatterns []FailurePattern `json:"failure_patterns,omitempty"`
}

// Aggregate folds a run's item details into the dashboard view. Pass rate
// is PASS count over all items; metric means count only items the judge
// scored on that metric. A failed item lands in failure patterns once,
// whether it errored, logic-failed, or both.
func Aggregate(details []db.RunItemDetail) Dashboard {
	dash := Dashboard{TotalItems: len(details)}

	logicPass := 0
	latencySum, latencyCount := 0, 0
	metricSums := make(map[string]float64)
	metricCounts := make(map[string]int)
	failureCounts := make(map[string]int)

	for i := range details {
		d := &details[i]
		item := d.Item

		if item.ExecutedAt != nil {
			dash.ExecutedItems++
		}
		itemFailed := item.Error != ""
		if itemFailed {
			dash.ErrorItems++
		}
		if item.LatencyMS != nil {
			latencySum += *item.LatencyMS
			latencyCount++
		}

		if d.Logic != nil && d.Logic.Result != db.LogicResultSkipped && d.Logic.Result != "" {
			if d.Logic.Result == db.LogicResultPass {
				logicPass++
			} else {
				itemFailed = true
			}
		}
		if itemFailed {
			failureCounts[failureCategory(item)]++
		}

		if d.LLM != nil && d.LLM.Status == db.LLMStatusDone {
			for name, score := range d.LLM.Scores {
				metricSums[name] += score
				metricCounts[name]++
			}
		}
	}

	if dash.TotalItems > 0 {
		dash.LogicPassRate = round2(float64(logicPass) / float64(dash.TotalItems) * 100)
	}
	if latencyCount > 0 {
		dash.AverageLatencyMS = round2(float64(latencySum) / float64(latencyCount))
	}
	if len(metricSums) > 0 {
		dash.MetricAverages = make(map[string]float64, len(metricSums))
		for name, sum := range metricSums {
			dash.MetricAverages[name] = round2(sum / float64(metricCounts[name]))
		}
	}

	for category, count := range failureCounts {
		dash.FailurePatterns = append(dash.FailurePatterns, FailurePattern{Category: category, Count: count})
	}
	sort.Slice(dash.FailurePatterns, func(i, j int) bool {
		a, b := dash.FailurePatterns[i], dash.FailurePatterns[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Category < b.Category
	})

	return dash
}

// Snapshot derives the write-once score record from a run and its dashboard
func Snapshot(run *db.Run, dash Dashboard) *db.ScoreSnapshot {
	return &db.ScoreSnapshot{
		RunID:          &run.ID,
		TestSetID:      run.TestSetID,
		Environment:    run.Environment,
		TotalItems:     dash.TotalItems,
		ExecutedItems:  dash.ExecutedItems,
		ErrorItems:     dash.ErrorItems,
		LogicPassRate:  dash.LogicPassRate,
		MetricAverages: dash.MetricAverages,
	}
}

func failureCategory(item db.RunItem) string {
	category := strings.TrimSpace(item.Category)
	if category == "" {
		return "uncategorized"
	}
	return category
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
