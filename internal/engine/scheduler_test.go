package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postflow/engage/internal/entities"
)

func TestBuildSteps_TwoStepCommentToDM(t *testing.T) {
	now := time.Now()
	rule := &entities.AutomationRule{
		RuleType:             entities.RuleTypeCommentToDM,
		ReplyFirst:           true,
		PublicReplyContent:   "Check your DMs!",
		ResponseContent:      "Here's the link you asked for",
		FollowUpDelayMinutes: 2,
		ResponseKind:         entities.ResponseText,
	}

	steps := buildSteps(rule, now)
	require.Len(t, steps, 2)

	assert.Equal(t, entities.StepPublicReply, steps[0].Kind)
	assert.Equal(t, "Check your DMs!", steps[0].Content)
	assert.Equal(t, now, steps[0].NotBefore)
	assert.False(t, steps[0].UsesGeneration)

	assert.Equal(t, entities.StepDM, steps[1].Kind)
	assert.Equal(t, "Here's the link you asked for", steps[1].Content)
	assert.Equal(t, now.Add(2*time.Minute), steps[1].NotBefore)
	assert.Equal(t, 1, steps[1].SortOrder)
}

func TestBuildSteps_ReplyContentFallsBackToResponse(t *testing.T) {
	rule := &entities.AutomationRule{
		RuleType:        entities.RuleTypeCommentToDM,
		ReplyFirst:      true,
		ResponseContent: "the only content",
	}

	steps := buildSteps(rule, time.Now())
	require.Len(t, steps, 2)
	assert.Equal(t, "the only content", steps[0].Content)
}

func TestBuildSteps_SingleStepKinds(t *testing.T) {
	tests := []struct {
		name     string
		ruleType entities.RuleType
		want     entities.StepKind
	}{
		{"comment reply is public", entities.RuleTypeComment, entities.StepPublicReply},
		{"mention reply is public", entities.RuleTypeMentionReply, entities.StepPublicReply},
		{"story reply is dm", entities.RuleTypeStoryReply, entities.StepDM},
		{"comment_to_dm without reply first is dm only", entities.RuleTypeCommentToDM, entities.StepDM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &entities.AutomationRule{
				RuleType:        tt.ruleType,
				ResponseContent: "hello",
			}
			steps := buildSteps(rule, time.Now())
			require.Len(t, steps, 1)
			assert.Equal(t, tt.want, steps[0].Kind)
		})
	}
}

func TestBuildSteps_AIGenerationFlagsDMOnly(t *testing.T) {
	rule := &entities.AutomationRule{
		RuleType:             entities.RuleTypeCommentToDM,
		ReplyFirst:           true,
		ResponseKind:         entities.ResponseAIGenerated,
		PublicReplyContent:   "static reply",
		ResponseContent:      "fallback dm",
		FollowUpDelayMinutes: 1,
	}

	steps := buildSteps(rule, time.Now())
	require.Len(t, steps, 2)
	assert.False(t, steps[0].UsesGeneration, "public reply stays static")
	assert.True(t, steps[1].UsesGeneration, "dm content is generated at send time")
}
