package internal

import (
	jsoniter "github.com/json-iterator/go"
	"time"
)

var json = jsoniter.ConfigFastest

const (
	Primary UpstreamId = iota
	Secondary
)

// Upstreams lists every upstream in preference order.
var Upstreams = [...]UpstreamId{Primary, Secondary}

type UpstreamId int
type UpstreamName string

func (u UpstreamId) Name() UpstreamName {
	switch u {
	case Primary:
		return "default"
	case Secondary:
		return "fallback"
	default:
		return ""
	}
}

func (u UpstreamId) String() string {
	return string(u.Name())
}

func (u UpstreamId) Valid() bool {
	return u == Primary || u == Secondary
}

func ParseUpstreamName(name string) (UpstreamId, bool) {
	for _, u := range Upstreams {
		if string(u.Name()) == name {
			return u, true
		}
	}
	return 0, false
}

type HealthStatus struct {
	Failing         bool       `json:"failing"`
	MinResponseTime int        `json:"minResponseTime"`
	Upstream        UpstreamId `json:"-"`
}

// PaymentRequest is immutable once admitted.
type PaymentRequest struct {
	CorrelationId string
	Amount        Amount
	AdmittedAt    time.Time
}

type paymentInput struct {
	CorrelationId string `json:"correlationId"`
	Amount        Amount `json:"amount"`
}

// Counter is a pair of running totals for one upstream.
type Counter struct {
	Requests int64
	Cents    int64
}

func (c Counter) Add(o Counter) Counter {
	return Counter{Requests: c.Requests + o.Requests, Cents: c.Cents + o.Cents}
}

func (c Counter) Sub(o Counter) Counter {
	return Counter{Requests: c.Requests - o.Requests, Cents: c.Cents - o.Cents}
}

func (c Counter) IsZero() bool {
	return c.Requests == 0 && c.Cents == 0
}

// Totals holds one Counter per upstream, indexed by UpstreamId.
type Totals [len(Upstreams)]Counter

type PaymentSummary struct {
	TotalRequests int64  `json:"totalRequests"`
	TotalAmount   Amount `json:"totalAmount"`
}

type Summary map[UpstreamName]PaymentSummary

func NewSummary(counters Totals) Summary {
	s := make(Summary, len(Upstreams))
	for _, u := range Upstreams {
		s[u.Name()] = PaymentSummary{
			TotalRequests: counters[u].Requests,
			TotalAmount:   AmountFromCents(counters[u].Cents),
		}
	}
	return s
}

func ParseTimeOrDefault(s string, t time.Time) (time.Time, error) {
	if s == "" {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
