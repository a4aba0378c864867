package entities

// Platform identifies the social network a rule or event belongs to.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
)

// Valid reports whether the platform is one of the supported networks.
func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformYouTube, PlatformTikTok, PlatformTwitter:
		return true
	default:
		return false
	}
}

// RuleType defines what kind of engagement a rule automates.
type RuleType string

const (
	RuleTypeCommentToDM  RuleType = "comment_to_dm"
	RuleTypeComment      RuleType = "comment"
	RuleTypeStoryReply   RuleType = "story_reply"
	RuleTypeMentionReply RuleType = "mention_reply"
)

// Valid reports whether the rule type is a known value.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeCommentToDM, RuleTypeComment, RuleTypeStoryReply, RuleTypeMentionReply:
		return true
	default:
		return false
	}
}

// TriggerKind defines the predicate used to match event text.
type TriggerKind string

const (
	TriggerKeyword     TriggerKind = "keyword"
	TriggerHashtag     TriggerKind = "hashtag"
	TriggerMention     TriggerKind = "mention"
	TriggerEmoji       TriggerKind = "emoji"
	TriggerAllComments TriggerKind = "all_comments"
	TriggerAllDMs      TriggerKind = "all_dms"
)

// Valid reports whether the trigger kind is a known value.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerKeyword, TriggerHashtag, TriggerMention, TriggerEmoji, TriggerAllComments, TriggerAllDMs:
		return true
	default:
		return false
	}
}

// ResponseKind defines how response content is produced.
type ResponseKind string

const (
	ResponseText        ResponseKind = "text"
	ResponseAIGenerated ResponseKind = "ai_generated"
	ResponseTemplate    ResponseKind = "template"
	ResponseMedia       ResponseKind = "media"
)

// Valid reports whether the response kind is a known value.
func (k ResponseKind) Valid() bool {
	switch k {
	case ResponseText, ResponseAIGenerated, ResponseTemplate, ResponseMedia:
		return true
	default:
		return false
	}
}

// EventType identifies the kind of inbound interaction an Event records.
type EventType string

const (
	EventComment    EventType = "comment"
	EventDM         EventType = "dm"
	EventMention    EventType = "mention"
	EventStoryReply EventType = "story_reply"
)

// Valid reports whether the event type is a known value.
func (t EventType) Valid() bool {
	switch t {
	case EventComment, EventDM, EventMention, EventStoryReply:
		return true
	default:
		return false
	}
}

// PlanStatus is the lifecycle state of an ActionPlan.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress"
	PlanCompleted  PlanStatus = "completed"
	PlanFailed     PlanStatus = "failed"
)

// Terminal reports whether the plan can no longer change state.
func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanFailed
}

// StepKind identifies what an ActionStep sends.
type StepKind string

const (
	StepPublicReply StepKind = "public_reply"
	StepDM          StepKind = "dm"
)

// StepStatus is the lifecycle state of a single ActionStep.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
)

// Outcome classifies an engagement record.
type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
)
