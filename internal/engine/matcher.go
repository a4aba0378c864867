package engine

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/postflow/engage/internal/entities"
	"github.com/postflow/engage/internal/repository"
)

// Matcher finds candidate rules for an event and evaluates their trigger
// predicates. Active rules are cached in memory, indexed by
// (platform, post), and refreshed on startup and whenever the rule
// management API changes a rule.
type Matcher struct {
	repo repository.RuleRepository

	rules   map[string][]entities.AutomationRule
	rulesMu sync.RWMutex
}

// NewMatcher creates a new Matcher with an empty cache.
func NewMatcher(repo repository.RuleRepository) *Matcher {
	return &Matcher{
		repo:  repo,
		rules: make(map[string][]entities.AutomationRule),
	}
}

// RefreshRules reloads active rules from the database.
// Call this on startup and whenever rules are modified via the API.
func (m *Matcher) RefreshRules(ctx context.Context) error {
	rules, err := m.repo.GetActiveRules(ctx)
	if err != nil {
		return err
	}
	index := make(map[string][]entities.AutomationRule)
	for i := range rules {
		key := postKey(rules[i].Platform, rules[i].PostID)
		index[key] = append(index[key], rules[i])
	}
	m.rulesMu.Lock()
	m.rules = index
	m.rulesMu.Unlock()
	return nil
}

func postKey(platform entities.Platform, postID string) string {
	return string(platform) + "|" + postID
}

// Match evaluates every active rule on the event's post against the event.
// It returns the rules whose trigger matched and a MatchResult for each
// candidate, matched or not. Multiple rules may match the same event; each
// fires independently.
func (m *Matcher) Match(event *entities.Event) ([]entities.AutomationRule, []MatchResult) {
	m.rulesMu.RLock()
	cached := m.rules[postKey(event.Platform, event.PostID)]
	candidates := make([]entities.AutomationRule, len(cached))
	copy(candidates, cached)
	m.rulesMu.RUnlock()

	var matched []entities.AutomationRule
	results := make([]MatchResult, 0, len(candidates))
	for i := range candidates {
		rule := &candidates[i]
		ok := typeCompatible(rule.RuleType, event.EventType) && triggerMatches(rule, event)
		results = append(results, MatchResult{EventID: event.ID, RuleID: rule.ID, Matched: ok})
		if ok {
			matched = append(matched, candidates[i])
		}
	}
	return matched, results
}

// typeCompatible reports whether a rule type can respond to an event type.
// Story replies are delivered through the DM inbox on Instagram, so
// story_reply rules also see dm events.
func typeCompatible(ruleType entities.RuleType, eventType entities.EventType) bool {
	switch ruleType {
	case entities.RuleTypeComment, entities.RuleTypeCommentToDM:
		return eventType == entities.EventComment
	case entities.RuleTypeStoryReply:
		return eventType == entities.EventStoryReply || eventType == entities.EventDM
	case entities.RuleTypeMentionReply:
		return eventType == entities.EventMention
	default:
		return false
	}
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_.]+)`)

// triggerMatches evaluates the rule's trigger predicate against event text.
func triggerMatches(rule *entities.AutomationRule, event *entities.Event) bool {
	text := strings.ToLower(event.Text)

	switch rule.TriggerKind {
	case entities.TriggerKeyword, entities.TriggerEmoji:
		value := strings.ToLower(strings.TrimSpace(rule.TriggerValue))
		return value != "" && strings.Contains(text, value)
	case entities.TriggerHashtag:
		value := strings.ToLower(strings.TrimSpace(rule.TriggerValue))
		if value == "" {
			return false
		}
		if !strings.HasPrefix(value, "#") {
			value = "#" + value
		}
		return strings.Contains(text, value)
	case entities.TriggerMention:
		mentions := mentionPattern.FindAllStringSubmatch(event.Text, -1)
		if len(mentions) == 0 {
			return false
		}
		value := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(rule.TriggerValue), "@"))
		if value == "" {
			return true // any mention
		}
		for _, m := range mentions {
			if strings.EqualFold(m[1], value) {
				return true
			}
		}
		return false
	case entities.TriggerAllComments:
		return event.EventType == entities.EventComment
	case entities.TriggerAllDMs:
		return event.EventType == entities.EventDM || event.EventType == entities.EventStoryReply
	default:
		return false
	}
}
