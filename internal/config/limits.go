package config

import "fmt"

// LimitType identifies a rate-limited award action.
type LimitType string

const (
	LimitDailyLogin       LimitType = "daily_login"
	LimitWeeklyPost       LimitType = "weekly_post"
	LimitWeeklyWish       LimitType = "weekly_wish"
	LimitFacebookShare    LimitType = "facebook_share"
	LimitProductCardClick LimitType = "product_card_click"
)

// WindowKind is the time window a limit counter covers.
type WindowKind string

const (
	WindowDaily    WindowKind = "daily"
	WindowWeekly   WindowKind = "weekly"
	WindowLifetime WindowKind = "lifetime"
)

type LimitRule struct {
	Window         WindowKind
	MaxCount       int
	PointsPerAward int64
	Reason         string
	// SelfClaimed actions are reported by the acting user. The rest are awarded by
	// the flow that observed them (post creation, share callback) through the admin API.
	SelfClaimed bool
}

// LimitRules is the static award rule table.
var LimitRules = map[LimitType]LimitRule{
	LimitDailyLogin:       {Window: WindowDaily, MaxCount: 1, PointsPerAward: 10, Reason: "Daily login", SelfClaimed: true},
	LimitWeeklyPost:       {Window: WindowWeekly, MaxCount: 1, PointsPerAward: 50, Reason: "Weekly post"},
	LimitWeeklyWish:       {Window: WindowWeekly, MaxCount: 1, PointsPerAward: 30, Reason: "Weekly wish"},
	LimitFacebookShare:    {Window: WindowLifetime, MaxCount: 1, PointsPerAward: 100, Reason: "Facebook share"},
	LimitProductCardClick: {Window: WindowLifetime, MaxCount: 8, PointsPerAward: 5, Reason: "Product card click", SelfClaimed: true},
}

// ConfigurationError means a limit type has no rule. It points at a code or deployment defect.
type ConfigurationError struct {
	LimitType LimitType
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no limit rule configured for %q", string(e.LimitType))
}

// LookupLimitRule returns the rule for t or a *ConfigurationError.
func LookupLimitRule(t LimitType) (LimitRule, error) {
	rule, ok := LimitRules[t]
	if !ok {
		return LimitRule{}, &ConfigurationError{LimitType: t}
	}
	return rule, nil
}

// ParseLimitType validates a limit type coming from a caller.
func ParseLimitType(s string) (LimitType, error) {
	t := LimitType(s)
	if _, err := LookupLimitRule(t); err != nil {
		return "", err
	}
	return t, nil
}
