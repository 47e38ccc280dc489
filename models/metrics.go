package models

import "time"

// MetricsWindow describes the time range an aggregate covers
type MetricsWindow struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Minutes       int       `json:"minutes"`
	BucketMinutes int       `json:"bucketMinutes,omitempty"`
}

// MetricsSummary is the windowed aggregate over recent audit events
type MetricsSummary struct {
	Window    MetricsWindow   `json:"window"`
	Totals    EventTotals     `json:"totals"`
	Approvals ApprovalMetrics `json:"approvals"`
	Policy    PolicyMetrics   `json:"policy"`
	Security  SecurityMetrics `json:"security"`
	Routing   RoutingMetrics  `json:"routing"`
}

type EventTotals struct {
	Events int `json:"events"`
}

// ApprovalMetrics mixes store-wide status counts with windowed activity
type ApprovalMetrics struct {
	Pending         int `json:"pending"`
	Approved        int `json:"approved"`
	Rejected        int `json:"rejected"`
	Expired         int `json:"expired"`
	CreatedInWindow int `json:"createdInWindow"`
	DecidedInWindow int `json:"decidedInWindow"`
}

type PolicyMetrics struct {
	Intercepted int `json:"intercepted"`
	Allow       int `json:"allow"`
	Ask         int `json:"ask"`
	Deny        int `json:"deny"`
}

type SecurityMetrics struct {
	RedactionEvents           int `json:"redactionEvents"`
	RedactionsTotal           int `json:"redactionsTotal"`
	PromptInjectionFlagsTotal int `json:"promptInjectionFlagsTotal"`
	OutboundBlocked           int `json:"outboundBlocked"`
}

type TierCounts struct {
	Local   int `json:"local"`
	Cheap   int `json:"cheap"`
	Premium int `json:"premium"`
}

type RoutingMetrics struct {
	Total               int        `json:"total"`
	ByTier              TierCounts `json:"byTier"`
	AveragePromptLength float64    `json:"averagePromptLength"`
	EstimatedCost       float64    `json:"estimatedCost"`
	EstimatedSavings    float64    `json:"estimatedSavings"`
	SavingsPercentage   float64    `json:"savingsPercentage"`
}

// MetricsTimeseries is a sequence of contiguous fixed-width buckets
type MetricsTimeseries struct {
	Window  MetricsWindow      `json:"window"`
	Buckets []TimeseriesBucket `json:"buckets"`
}

type TimeseriesBucket struct {
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Totals    EventTotals           `json:"totals"`
	Policy    PolicyMetrics         `json:"policy"`
	Approvals BucketApprovalMetrics `json:"approvals"`
	Security  BucketSecurityMetrics `json:"security"`
	Routing   BucketRoutingMetrics  `json:"routing"`
}

type BucketApprovalMetrics struct {
	Created int `json:"created"`
	Decided int `json:"decided"`
}

type BucketSecurityMetrics struct {
	RedactionEvents int `json:"redactionEvents"`
	OutboundBlocked int `json:"outboundBlocked"`
}

type BucketRoutingMetrics struct {
	Total            int     `json:"total"`
	Local            int     `json:"local"`
	Cheap            int     `json:"cheap"`
	Premium          int     `json:"premium"`
	EstimatedCost    float64 `json:"estimatedCost"`
	EstimatedSavings float64 `json:"estimatedSavings"`
}
