package oracle

import (
	"fmt"
	"strings"

	"github.com/joss/hawtch/internal/domain"
)

const analysisSystemPrompt = `You are a monitoring agent that watches an AI coding assistant to ensure it stays on task.

Your job is to analyze the assistant's recent activity and determine if it is:
1. Following the user's instructions
2. Making progress on stated todo items
3. Avoiding hallucinations or incorrect assumptions
4. Actually executing tasks rather than just saying it will "monitor" or "check later" (which it cannot do)

Respond in the following JSON format:
{
  "is_on_task": true/false,
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation of your determination",
  "detected_issues": ["list", "of", "specific", "problems"],
  "recommended_action": "What should be done if off-task (null if on-task)"
}

Be strict but fair. The assistant should be actively working on the user's request.`

const answerSystemPrompt = `You are an AI assistant helping to answer questions that an AI coding assistant asks its user.

Your job is to analyze the question in the context of the current task and provide:
1. Your best answer to the question
2. Your confidence level (0.0 to 1.0) in that answer
3. Brief reasoning for your answer

If you are not confident in your answer, the question will be forwarded to the human user.

Respond in JSON format:
{
  "answer": "Your answer to the question",
  "confidence": 0.85,
  "reasoning": "Why you chose this answer and what makes you uncertain"
}

Be conservative with confidence - only give high confidence if you are very certain based on the task context.`

// recentHistory renders the last few events as prompt bullet lines.
func recentHistory(tc domain.TaskContext, limit, width int) string {
	events := tc.RecentEvents
	if len(events) > limit {
		events = events[len(events)-limit:]
	}

	var sb strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&sb, "- [%s] %s\n", ev.Timestamp.Format("15:04:05"), clip(ev.Display, width))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func todoSection(title string, todos []string) string {
	if len(todos) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n\n%s:\n", title)
	for _, todo := range todos {
		fmt.Fprintf(&sb, "- %s\n", todo)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func buildAnalysisPrompt(tc domain.TaskContext, activity string) string {
	return fmt.Sprintf(`Analyze the coding assistant's activity:

USER INSTRUCTION:
%s%s%s

RECENT ACTIVITY:
%s

CURRENT ACTIVITY:
%s

Is the assistant staying on task? Respond in JSON format as specified.`,
		tc.Instruction,
		todoSection("Current TODOs", tc.CurrentTodos),
		todoSection("Completed TODOs", tc.CompletedTodos),
		recentHistory(tc, 5, 100),
		activity,
	)
}

func buildAnswerPrompt(question string, tc domain.TaskContext, extra string) string {
	contextSection := ""
	if extra != "" {
		contextSection = "\n\nAdditional Context:\n" + extra
	}

	return fmt.Sprintf(`Task: %s

Recent Activity:
%s%s%s

The coding assistant is asking:
%q

Please provide your answer, confidence level, and reasoning in JSON format.`,
		tc.Instruction,
		recentHistory(tc, 5, 150),
		todoSection("Current TODOs", tc.CurrentTodos),
		contextSection,
		question,
	)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
