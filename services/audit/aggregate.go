package audit

import (
	"encoding/json"
	"math"
	"time"

	"github.com/upb/agent-control-plane/models"
)

const (
	DefaultSummaryWindow    = 60
	DefaultTimeseriesWindow = 180
	DefaultTimeseriesBucket = 5

	maxWindowMinutes = 7 * 24 * 60
	maxBucketMinutes = 240
)

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// counters accumulate per-type figures over a set of events
type counters struct {
	intercepted, allow, ask, deny int
	created, decided              int

	redactionEvents, redactionsTotal int
	injectionFlags, outboundBlocked  int

	routed, local, cheap, premium int
	promptLengthTotal             float64
	promptLengthCount             int
	cost, premiumBaseline         float64
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringCount(v any) int {
	switch items := v.(type) {
	case []string:
		return len(items)
	case []any:
		n := 0
		for _, item := range items {
			if _, ok := item.(string); ok {
				n++
			}
		}
		return n
	}
	return 0
}

func (c *counters) apply(e models.AuditEvent) {
	p := e.Payload
	switch e.Type {
	case models.AuditEventToolCallIntercepted:
		c.intercepted++
	case models.AuditEventToolCallDecision:
		switch decisionOf(p["decision"]) {
		case models.DecisionAllow:
			c.allow++
		case models.DecisionAsk:
			c.ask++
		case models.DecisionDeny:
			c.deny++
		}
	case models.AuditEventApprovalCreated:
		c.created++
	case models.AuditEventApprovalDecided:
		c.decided++
	case models.AuditEventToolResultSanitized:
		redactions := stringCount(p["redactions"])
		if redactions > 0 {
			c.redactionEvents++
		}
		c.redactionsTotal += redactions
		c.injectionFlags += stringCount(p["promptInjectionFlags"])
	case models.AuditEventOutboundMessageChecked:
		if allowed, ok := p["allowed"].(bool); ok && !allowed {
			c.outboundBlocked++
		}
	case models.AuditEventModelRouted:
		c.routed++
		switch tierOf(p["tier"]) {
		case models.TierLocal:
			c.local++
		case models.TierCheap:
			c.cheap++
		case models.TierPremium:
			c.premium++
		}
		if n, ok := asNumber(p["promptLength"]); ok {
			c.promptLengthTotal += n
			c.promptLengthCount++
		}
		tokens, ok := asNumber(p["estimatedTokens"])
		if !ok {
			return
		}
		if rate, ok := asNumber(p["tierCostPerMillion"]); ok {
			c.cost += tokens / 1e6 * rate
		}
		if rate, ok := asNumber(p["premiumCostPerMillion"]); ok {
			c.premiumBaseline += tokens / 1e6 * rate
		}
	}
}

func decisionOf(v any) models.Decision {
	switch d := v.(type) {
	case string:
		return models.Decision(d)
	case models.Decision:
		return d
	}
	return ""
}

func tierOf(v any) models.Tier {
	switch t := v.(type) {
	case string:
		return models.Tier(t)
	case models.Tier:
		return t
	}
	return ""
}

func (c *counters) savings() float64 {
	return c.premiumBaseline - c.cost
}

// Summary aggregates events from the last windowMinutes minutes, clamped to
// [1, 10080]. Approval status counts are left at zero; callers merge the
// store-wide figures with MergeApprovalCounts.
func (s *Store) Summary(windowMinutes int) models.MetricsSummary {
	events, now := s.snapshot()
	windowMinutes = clamp(windowMinutes, 1, maxWindowMinutes)
	from := now.Add(-time.Duration(windowMinutes) * time.Minute)

	var c counters
	total := 0
	for _, e := range events {
		if e.Timestamp.Before(from) {
			continue
		}
		total++
		c.apply(e)
	}

	var avgPrompt, pct float64
	if c.promptLengthCount > 0 {
		avgPrompt = round(c.promptLengthTotal/float64(c.promptLengthCount), 2)
	}
	if c.premiumBaseline > 0 {
		pct = round(c.savings()/c.premiumBaseline*100, 1)
	}

	return models.MetricsSummary{
		Window: models.MetricsWindow{From: from.UTC(), To: now.UTC(), Minutes: windowMinutes},
		Totals: models.EventTotals{Events: total},
		Approvals: models.ApprovalMetrics{
			CreatedInWindow: c.created,
			DecidedInWindow: c.decided,
		},
		Policy: models.PolicyMetrics{
			Intercepted: c.intercepted,
			Allow:       c.allow,
			Ask:         c.ask,
			Deny:        c.deny,
		},
		Security: models.SecurityMetrics{
			RedactionEvents:           c.redactionEvents,
			RedactionsTotal:           c.redactionsTotal,
			PromptInjectionFlagsTotal: c.injectionFlags,
			OutboundBlocked:           c.outboundBlocked,
		},
		Routing: models.RoutingMetrics{
			Total:               c.routed,
			ByTier:              models.TierCounts{Local: c.local, Cheap: c.cheap, Premium: c.premium},
			AveragePromptLength: avgPrompt,
			EstimatedCost:       round(c.cost, 6),
			EstimatedSavings:    round(c.savings(), 6),
			SavingsPercentage:   pct,
		},
	}
}

// Timeseries splits the last windowMinutes into ceil(window/bucket)
// contiguous buckets. The window is clamped to [1, 10080] and the bucket
// width to [1, 240] minutes.
func (s *Store) Timeseries(windowMinutes, bucketMinutes int) models.MetricsTimeseries {
	events, now := s.snapshot()
	windowMinutes = clamp(windowMinutes, 1, maxWindowMinutes)
	bucketMinutes = clamp(bucketMinutes, 1, maxBucketMinutes)

	window := time.Duration(windowMinutes) * time.Minute
	width := time.Duration(bucketMinutes) * time.Minute
	from := now.Add(-window)
	n := max(1, int((window+width-1)/width))

	totals := make([]int, n)
	perBucket := make([]counters, n)
	for _, e := range events {
		if e.Timestamp.Before(from) || e.Timestamp.After(now) {
			continue
		}
		idx := clamp(int(e.Timestamp.Sub(from)/width), 0, n-1)
		totals[idx]++
		perBucket[idx].apply(e)
	}

	buckets := make([]models.TimeseriesBucket, n)
	for i := range buckets {
		start := from.Add(time.Duration(i) * width)
		end := start.Add(width)
		if end.After(now) {
			end = now
		}
		c := &perBucket[i]
		buckets[i] = models.TimeseriesBucket{
			Start:  start.UTC(),
			End:    end.UTC(),
			Totals: models.EventTotals{Events: totals[i]},
			Policy: models.PolicyMetrics{
				Intercepted: c.intercepted,
				Allow:       c.allow,
				Ask:         c.ask,
				Deny:        c.deny,
			},
			Approvals: models.BucketApprovalMetrics{Created: c.created, Decided: c.decided},
			Security:  models.BucketSecurityMetrics{RedactionEvents: c.redactionEvents, OutboundBlocked: c.outboundBlocked},
			Routing: models.BucketRoutingMetrics{
				Total:            c.routed,
				Local:            c.local,
				Cheap:            c.cheap,
				Premium:          c.premium,
				EstimatedCost:    round(c.cost, 6),
				EstimatedSavings: round(c.savings(), 6),
			},
		}
	}

	return models.MetricsTimeseries{
		Window: models.MetricsWindow{
			From:          from.UTC(),
			To:            now.UTC(),
			Minutes:       windowMinutes,
			BucketMinutes: bucketMinutes,
		},
		Buckets: buckets,
	}
}

// MergeApprovalCounts fills the store-wide approval status counts into a
// summary produced by Summary.
func MergeApprovalCounts(summary *models.MetricsSummary, items []models.ApprovalRequest) {
	summary.Approvals.Pending = 0
	summary.Approvals.Approved = 0
	summary.Approvals.Rejected = 0
	summary.Approvals.Expired = 0
	for _, item := range items {
		switch item.Status {
		case models.ApprovalStatusPending:
			summary.Approvals.Pending++
		case models.ApprovalStatusApproved:
			summary.Approvals.Approved++
		case models.ApprovalStatusRejected:
			summary.Approvals.Rejected++
		case models.ApprovalStatusExpired:
			summary.Approvals.Expired++
		}
	}
}
