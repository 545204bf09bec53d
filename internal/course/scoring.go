package course

import (
	"fmt"
	"math"
)

// Policy names accepted in course files.
const (
	PolicyTime       = "time"
	PolicyCompletion = "completion"
)

// Stats is the frozen session state a policy scores.
type Stats struct {
	ElapsedSeconds  float64
	Restarts        int
	PlatesActivated int
	PlatesTotal     int
	PhotosCaptured  int
	PhotosTotal     int
}

// Summary is the final score of a session.
type Summary struct {
	Policy         string  `json:"policy"`
	Metric         float64 `json:"metric"`
	Stars          int     `json:"stars"`
	RestartCount   int     `json:"restart_count"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Plates         int     `json:"plates"`
	PlatesTotal    int     `json:"plates_total"`
	Photos         int     `json:"photos"`
	PhotosTotal    int     `json:"photos_total"`
}

// Policy turns session stats into a metric and a 1-3 star rating.
type Policy interface {
	Name() string
	Score(Stats) Summary
}

// TimePolicy scores by elapsed time plus a per-restart time penalty.
// Lower is better; thresholds are inclusive.
type TimePolicy struct {
	ThreeStarTime       float64 `yaml:"three_star_time"`
	TwoStarTime         float64 `yaml:"two_star_time"`
	ResetPenaltySeconds float64 `yaml:"reset_penalty_seconds"`
}

// DefaultTimePolicy returns the thresholds used by the time-trial levels.
func DefaultTimePolicy() TimePolicy {
	return TimePolicy{ThreeStarTime: 210, TwoStarTime: 300, ResetPenaltySeconds: 5}
}

func (p TimePolicy) Name() string { return PolicyTime }

func (p TimePolicy) Score(s Stats) Summary {
	metric := s.ElapsedSeconds + float64(s.Restarts)*p.ResetPenaltySeconds
	stars := 1
	switch {
	case metric <= p.ThreeStarTime:
		stars = 3
	case metric <= p.TwoStarTime:
		stars = 2
	}
	return newSummary(p.Name(), metric, stars, s)
}

// CompletionPolicy scores by the mean of plate and photo completion minus a
// per-restart point penalty, floored at zero. Higher is better; thresholds
// are inclusive.
type CompletionPolicy struct {
	ThreeStarThreshold   float64 `yaml:"three_star_threshold"`
	TwoStarThreshold     float64 `yaml:"two_star_threshold"`
	RestartPenaltyPoints float64 `yaml:"restart_penalty_points"`
}

// DefaultCompletionPolicy returns the thresholds used by the survey levels.
func DefaultCompletionPolicy() CompletionPolicy {
	return CompletionPolicy{ThreeStarThreshold: 90, TwoStarThreshold: 60, RestartPenaltyPoints: 5}
}

func (p CompletionPolicy) Name() string { return PolicyCompletion }

func (p CompletionPolicy) Score(s Stats) Summary {
	base := (percent(s.PlatesActivated, s.PlatesTotal) + percent(s.PhotosCaptured, s.PhotosTotal)) / 2
	metric := math.Max(0, base-float64(s.Restarts)*p.RestartPenaltyPoints)
	stars := 1
	switch {
	case metric >= p.ThreeStarThreshold:
		stars = 3
	case metric >= p.TwoStarThreshold:
		stars = 2
	}
	return newSummary(p.Name(), metric, stars, s)
}

// percent treats an empty denominator as zero completion.
func percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func newSummary(policy string, metric float64, stars int, s Stats) Summary {
	return Summary{
		Policy:         policy,
		Metric:         metric,
		Stars:          stars,
		RestartCount:   s.Restarts,
		ElapsedSeconds: s.ElapsedSeconds,
		Plates:         s.PlatesActivated,
		PlatesTotal:    s.PlatesTotal,
		Photos:         s.PhotosCaptured,
		PhotosTotal:    s.PhotosTotal,
	}
}

// ValidatePolicy checks that threshold directions match the policy.
func ValidatePolicy(p Policy) error {
	switch v := p.(type) {
	case TimePolicy:
		if v.ThreeStarTime > v.TwoStarTime {
			return fmt.Errorf("time policy: three_star_time %.2f exceeds two_star_time %.2f", v.ThreeStarTime, v.TwoStarTime)
		}
		if v.ResetPenaltySeconds < 0 {
			return fmt.Errorf("time policy: negative reset penalty")
		}
	case CompletionPolicy:
		if v.ThreeStarThreshold < v.TwoStarThreshold {
			return fmt.Errorf("completion policy: three_star_threshold %.2f below two_star_threshold %.2f", v.ThreeStarThreshold, v.TwoStarThreshold)
		}
		if v.RestartPenaltyPoints < 0 {
			return fmt.Errorf("completion policy: negative restart penalty")
		}
	case nil:
		return fmt.Errorf("no scoring policy")
	}
	return nil
}
