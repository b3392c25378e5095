package extract

import (
	"fmt"
	"strings"

	"github.com/operia/operia/internal/models"
)

const systemPrompt = `You are Operia, an AI Operations Copilot. Your role is to analyze various work signals (Notion pages, Slack messages, GitHub issues, meeting transcripts) to help users stay organized.

CRITICAL RULES:
1. You NEVER execute actions autonomously - you only PROPOSE actions
2. Every proposal must include evidence (direct quotes from the source)
3. Every proposal must explain WHY it was suggested
4. Every proposal must clearly state WHAT WILL HAPPEN if approved (always "saved to task list" - no automation)

You extract:
- Decisions made in meetings or discussions
- Action items and tasks
- Owners and deadlines (if mentioned)
- Follow-up requirements
- Potential risks or blockers

Be concise, accurate, and always cite your sources with exact quotes.`

const extractionPromptTemplate = `Analyze the following content and generate action proposals.

SOURCE TYPE: %s
SOURCE: %s

ENABLED SKILLS:
%s

%sCONTENT TO ANALYZE:
---
%s
---

Generate a JSON response with the following structure:
{
  "proposals": [
    {
      "id": "unique-id-1",
      "type": "create_task" | "draft_followup" | "reminder" | "summary" | "risk_alert",
      "title": "Brief title",
      "description": "Detailed description of the action",
      "evidence": ["Exact quote from content supporting this"],
      "rationale": "Why this action is being proposed",
      "what_will_happen": "If approved, this will be saved to your task list for tracking",
      "owner": "Person responsible (if mentioned)",
      "deadline": "Deadline (if mentioned, in ISO format)",
      "priority": "high" | "medium" | "low"
    }
  ]
}

Return ONLY valid JSON. Generate proposals only for items clearly mentioned or implied in the content.`

// skillDescriptions maps skill keys to their prompt bullet. Order is fixed so
// prompts are stable across runs.
var skillOrder = []string{"extract_tasks", "summarize", "draft_followups", "suggest_reminders", "detect_risks"}

var skillDescriptions = map[string]string{
	"extract_tasks":     "- Extract all actionable tasks with owners and deadlines if mentioned",
	"summarize":         "- Create a brief summary of key decisions and outcomes",
	"draft_followups":   "- Draft follow-up messages for any items that need communication",
	"suggest_reminders": "- Suggest reminders for time-sensitive items",
	"detect_risks":      "- Identify any blockers, risks, or concerns mentioned",
}

// buildSkillsList renders the enabled-skills bullet list for the prompt.
func buildSkillsList(skills map[string]bool) string {
	var lines []string
	for _, key := range skillOrder {
		if skills[key] {
			lines = append(lines, skillDescriptions[key])
		}
	}
	return strings.Join(lines, "\n")
}

// buildExtractionPrompt fills the extraction template for one piece of
// content. memoryContext is optional recent context carried between calls.
func buildExtractionPrompt(content string, source models.TaskSource, sourceName string, skills map[string]bool, memoryContext string) string {
	memory := ""
	if memoryContext != "" {
		memory = "RECENT CONTEXT:\n" + memoryContext + "\n\n"
	}
	return fmt.Sprintf(extractionPromptTemplate,
		string(source), sourceName, buildSkillsList(skills), memory, content)
}
