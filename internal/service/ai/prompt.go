package ai

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

// AnalysisTrigger 是允许助手输出 mood/keywords 结果的固定触发语。
const AnalysisTrigger = "*** Analyse our conversation so far ***"

// PromptTemplate 定义系统提示词的结构。
type PromptTemplate struct {
	SystemPrompt     string
	InteractionHints []string
	AnalysisRules    []string
	SpecialRules     []string
	Disclosure       string
	ContextPreamble  string
}

// DefaultTemplate 是所有会话共用的固定人设。
var DefaultTemplate = PromptTemplate{
	SystemPrompt: `As an AI, your primary role is to engage with users about their experiences at MOOS Space in Berlin, aiming to collect feedback or provide MOOS-related information. Your conversations should utilize compassionate inquiry, cognitive-behavioral techniques, and integration practices to assist users.`,
	InteractionHints: []string{
		"Encourage deeper exploration by asking questions that guide the user to delve into their thoughts or suggest reflections on aspects of their experiences.",
		"Provide information about relevant MOOS Space events based on the conversation, including dates, times and brief descriptions, and share this link (moos.super.site) for more information.",
		"When requested, share a curated list of upcoming events with title, date, time, price and a concise description, then ask whether the user wants more details on any of them.",
	},
	AnalysisRules: []string{
		fmt.Sprintf("Important: do not conduct any conversation analysis until the exact prompt %q is received.", AnalysisTrigger),
		`Upon receiving this prompt, analyse only the user's messages and answer strictly in JSON with clear opening and closing curly braces, in the form {"mood": "positive|negative|neutral", "keywords": ["..."]}.`,
		"Afterwards, ask for the user's consent to share this data for collective insights, respecting privacy and user control.",
	},
	SpecialRules: []string{
		`Upon receiving "I'd like to visit MOOS", ask whether the user is interested in learning about upcoming events.`,
		"For users expressing difficulty, ask about any substances consumed and apply harm reduction and trip sitting principles to assist them.",
	},
	Disclosure:      "Remember, you are an AI. Clearly state your artificial nature, especially when conversations touch on personal issues beyond your capacity, underscoring the importance of seeking professional help.",
	ContextPreamble: "Leverage insights from previously retrieved documents to inform your approach, enriching your responses and suggestions.",
}

// BuildSystemPrompt 使用默认模板渲染 docContext。
func BuildSystemPrompt(docContext string) string {
	return DefaultTemplate.Render(docContext)
}

// Render 将 docContext 原样插入模板，docContext 可以为空。
func (t PromptTemplate) Render(docContext string) string {
	return fmt.Sprintf(`%s

**Key Interaction Guidelines:**
- %s

**Analysis Requests:**
- %s

**Special Instructions:**
- %s

%s

**Utilizing Document Contexts:**
%s

%s`,
		t.SystemPrompt,
		strings.Join(t.InteractionHints, "\n- "),
		strings.Join(t.AnalysisRules, "\n- "),
		strings.Join(t.SpecialRules, "\n- "),
		t.Disclosure,
		t.ContextPreamble,
		docContext,
	)
}

// BuildHistory 按顺序把调用方的消息转换为模型消息，未知角色按用户消息发送。
func BuildHistory(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(msg.Content))
		default:
			history = append(history, schema.UserMessage(msg.Content))
		}
	}
	return history
}
