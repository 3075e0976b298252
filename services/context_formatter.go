package services

import (
	"fmt"
	"strings"

	"goalchat/models"
)

// HistoryWindow is how many prior messages are forwarded to the model.
const HistoryWindow = 10

// Turn roles in the generation format.
const (
	TurnRoleUser  = "user"
	TurnRoleModel = "model"
)

const BaseSystemInstruction = `You are a highly intelligent and helpful AI assistant dedicated to assisting users with their learning goals, project management, and general knowledge within the domain of software development, engineering, and personal productivity.
Focus your responses on practical advice, explanations, roadmaps, and task breakdowns relevant to software development, engineering, project management, and learning strategies. Avoid discussing unrelated topics or giving personal opinions.
Provide clear, concise, and actionable responses. Use markdown for formatting lists, code snippets, and emphasis. If a user asks for a roadmap or plan, provide it in a step-by-step list format.`

const (
	noRoadmapMarker = "No roadmap defined."
	noSummaryMarker = "No summary available."
	historyHeading  = "\n\nConversation history:\n"
)

type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Prompt is the request payload handed to a Generator.
type Prompt struct {
	SystemInstruction string `json:"systemInstruction"`
	Turns             []Turn `json:"turns"`
}

// BuildPrompt assembles the generation payload from the active goal, the
// conversation history preceding the new message, and the new message. It
// has no hidden inputs: equal arguments give equal prompts.
func BuildPrompt(goal *models.Goal, history []models.Message, userMessage string) Prompt {
	var sb strings.Builder
	sb.WriteString(BaseSystemInstruction)
	if goal != nil {
		writeGoalContext(&sb, goal)
	}

	if len(history) > 0 {
		sb.WriteString(historyHeading)
	}
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	turns := make([]Turn, 0, len(history)+1)
	for _, m := range history {
		turns = append(turns, Turn{Role: turnRole(m.Role), Text: m.Content})
	}
	turns = append(turns, Turn{Role: TurnRoleUser, Text: userMessage})

	return Prompt{SystemInstruction: sb.String(), Turns: turns}
}

func writeGoalContext(sb *strings.Builder, g *models.Goal) {
	sb.WriteString("\n\nCurrent active goal context:\n")
	fmt.Fprintf(sb, "Title: %s\n", g.Title)
	fmt.Fprintf(sb, "Description: %s\n", g.Description)
	fmt.Fprintf(sb, "Status: %s\n", g.Status)
	sb.WriteString("Roadmap:\n")
	if len(g.Roadmap) == 0 {
		sb.WriteString(noRoadmapMarker + "\n")
	} else {
		for _, step := range g.Roadmap {
			fmt.Fprintf(sb, "- %s\n", step)
		}
	}
	summary := g.ProgressSummary
	if summary == "" {
		summary = noSummaryMarker
	}
	fmt.Fprintf(sb, "Progress Summary: %s\n", summary)
}

func turnRole(r models.Role) string {
	if r == models.RoleUser {
		return TurnRoleUser
	}
	return TurnRoleModel
}
