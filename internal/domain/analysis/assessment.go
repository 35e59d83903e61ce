package analysis

import "github.com/campus-insight/campus-insight-hub/internal/domain/student"

// RuleTag is a discrete label attached to a student when a named threshold
// predicate evaluates true.
type RuleTag string

const (
	// Ideology tags
	TagHighRadicalism = RuleTag("high_radicalism")
	TagLowPositivity  = RuleTag("low_positivity")
	TagHighIntensity  = RuleTag("high_intensity")
	TagHighVPNUsage   = RuleTag("high_vpn_usage")

	// Poverty tags
	TagPovertyRisk      = RuleTag("poverty_risk")
	TagExpenseDeclining = RuleTag("expense_declining")
	TagLowMinExpense    = RuleTag("low_min_expense")

	// TagNoSignal marks a student whose required inputs carried no data,
	// so trend- or oracle-based rules could not be evaluated.
	TagNoSignal = RuleTag("no_signal")
)

// RiskLevel grades how urgently a flagged student needs attention.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
	RiskNone   RiskLevel = "none"
)

// Band is the three-way level a continuous indicator falls into once the
// operator's high/low thresholds are applied.
type Band string

const (
	BandHigh    Band = "high"
	BandLow     Band = "low"
	BandNeutral Band = "neutral"
)

// BandOf classifies v against a high/low threshold pair.
func BandOf(v, high, low float64) Band {
	switch {
	case v >= high:
		return BandHigh
	case v <= low:
		return BandLow
	default:
		return BandNeutral
	}
}

// ProfileType is the named network-behavior profile assigned by the
// ideology analysis, together with a suggested engagement strategy.
type ProfileType string

const (
	ProfileActiveRadical    ProfileType = "active_radical"
	ProfileOverseasAffinity ProfileType = "overseas_affinity"
	ProfileExpertCreator    ProfileType = "expert_creator"
	ProfileQuietCritic      ProfileType = "quiet_critic"
	ProfileCautious         ProfileType = "cautious"
	ProfileImmersed         ProfileType = "immersed"
	ProfileTrafficSeeker    ProfileType = "traffic_seeker"
	ProfileRadicalLeaning   ProfileType = "radical_leaning"
	ProfilePotentialRisk    ProfileType = "potential_risk"
	ProfilePromising        ProfileType = "promising"
	ProfileRoutine          ProfileType = "routine"
)

// Strategy returns the suggested engagement strategy for the profile.
func (p ProfileType) Strategy() string {
	switch p {
	case ProfileActiveRadical, ProfileOverseasAffinity, ProfileRadicalLeaning:
		return "priority attention"
	case ProfilePotentialRisk:
		return "early warning review"
	case ProfileCautious:
		return "care and needs follow-up"
	case ProfilePromising:
		return "mentoring and development"
	default:
		return "periodic check-in"
	}
}

// DetermineProfile maps the three band levels onto a named profile.
// Mapping follows the operator playbook: radical bands dominate, then
// negative positivity, then the softer engagement profiles.
func DetermineProfile(positivity, intensity, radicalism Band) ProfileType {
	switch {
	case positivity != BandNeutral && intensity == BandHigh && radicalism == BandHigh:
		return ProfileActiveRadical
	case positivity == BandLow && radicalism == BandHigh:
		return ProfileOverseasAffinity
	case positivity == BandHigh && intensity == BandLow && radicalism == BandNeutral:
		return ProfileExpertCreator
	case positivity == BandNeutral && intensity == BandHigh && radicalism == BandLow:
		return ProfileQuietCritic
	case positivity == BandNeutral && intensity == BandNeutral && radicalism == BandLow:
		return ProfileCautious
	case positivity == BandNeutral && intensity == BandLow && radicalism == BandLow:
		return ProfileImmersed
	case positivity == BandNeutral && intensity == BandLow && radicalism == BandNeutral:
		return ProfileTrafficSeeker
	case radicalism == BandHigh:
		return ProfileRadicalLeaning
	case positivity == BandLow:
		return ProfilePotentialRisk
	case positivity == BandHigh:
		return ProfilePromising
	default:
		return ProfileRoutine
	}
}

// RiskAssessment is the scorer's verdict for one student in one run.
//
// IsOutlier is deterministic given the same feature matrix and
// contamination parameter; the detector uses a fixed seed.
type RiskAssessment struct {
	StudentID    student.ID
	AnomalyScore float64 // higher = more anomalous
	IsOutlier    bool
	Tags         []RuleTag
	Reasons      []string // human-readable reasons behind the tags
	Level        RiskLevel
	Profile      ProfileType // set by ideology analysis only
}

// HasTag reports whether the assessment carries the given tag.
func (a *RiskAssessment) HasTag(tag RuleTag) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag with its reason, skipping duplicates.
func (a *RiskAssessment) AddTag(tag RuleTag, reason string) {
	if a.HasTag(tag) {
		return
	}
	a.Tags = append(a.Tags, tag)
	if reason != "" {
		a.Reasons = append(a.Reasons, reason)
	}
}
