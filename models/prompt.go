package models

type SuggestedPrompt struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Icon string `json:"icon,omitempty"`
}

var SuggestedPrompts = []SuggestedPrompt{
	{ID: "roadmap", Text: "Generate a Roadmap", Icon: "🗺️"},
	{ID: "explain", Text: "Explain Concept", Icon: "💡"},
	{ID: "interview", Text: "Interview Prep", Icon: "🧑‍💼"},
	{ID: "summary", Text: "Summarize Document", Icon: "📝"},
	{ID: "debug", Text: "Debug Code", Icon: "🐛"},
	{ID: "plan", Text: "Create a Study Plan", Icon: "📚"},
}
