package ai

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

func TestBuildSystemPromptInterpolatesContext(t *testing.T) {
	prompt := BuildSystemPrompt("doc one\ndoc two")

	assert.Contains(t, prompt, AnalysisTrigger)
	assert.Contains(t, prompt, "Remember, you are an AI.")
	assert.Contains(t, prompt, "harm reduction")
	assert.True(t, strings.HasSuffix(prompt, "doc one\ndoc two"))
}

func TestBuildSystemPromptIsStaticWithoutContext(t *testing.T) {
	assert.Equal(t, BuildSystemPrompt(""), BuildSystemPrompt(""))
	assert.NotContains(t, BuildSystemPrompt(""), "%!")
}

func TestBuildHistoryMapsRoles(t *testing.T) {
	history := BuildHistory([]chat.Message{
		{Role: chat.RoleSystem, Content: "s"},
		{Role: chat.RoleUser, Content: "u"},
		{Role: chat.RoleAssistant, Content: "a"},
		{Role: "tool", Content: "t"},
	})

	roles := make([]schema.RoleType, len(history))
	for i, msg := range history {
		roles[i] = msg.Role
	}
	assert.Equal(t, []schema.RoleType{schema.System, schema.User, schema.Assistant, schema.User}, roles)
}
