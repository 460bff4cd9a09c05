package ai

import (
	"fmt"
	"strings"

	"github.com/companionchat/backend/internal/models"
)

// PersonaSystemPrompt builds the system prompt for a direct chat reply.
func PersonaSystemPrompt(c *models.Companion) string {
	var b strings.Builder
	b.WriteString(c.Instructions)
	fmt.Fprintf(&b, "\n\nYou are %s, %s", c.Name, c.Description)
	if c.Seed != "" {
		fmt.Fprintf(&b, "\n\nSeed personality: %s", c.Seed)
	}
	return b.String()
}

// GroupMainPrompt builds the system prompt for the main responder in a
// group chat.
func GroupMainPrompt(c *models.Companion) string {
	return fmt.Sprintf(`%s

You are %s, %s.
Keep responses concise and casual, like texting (max 2-3 sentences).
Be engaging but brief. No formal language or long explanations.`, c.Instructions, c.Name, c.Description)
}

// GroupFollowUpPrompt builds the system prompt for a secondary responder
// reacting to the main reply.
func GroupFollowUpPrompt(c *models.Companion) string {
	return fmt.Sprintf(`%s

You are %s, %s.
Respond briefly to the conversation (1-2 sentences max).
Keep it casual like texting. React naturally to what was said before.
No formal language or lengthy responses.`, c.Instructions, c.Name, c.Description)
}

// BehaviorPrompt builds the prompt for generating a companion behavior
// description from a name and optional draft instructions.
func BehaviorPrompt(name, instructions string) string {
	var base string
	if instructions != "" {
		base = fmt.Sprintf(`Create a detailed AI companion behavior description for %s, incorporating these key elements: %q.
The description should:
1. Build upon and expand the provided instructions
2. Maintain consistency with the given characteristics
3. Add depth to the personality while staying true to the core concept
4. Be at least 200 characters long
5. Be written in second person ("You are...")`, name, instructions)
	} else {
		base = fmt.Sprintf(`Create a detailed AI companion behavior description for %s.
The description should:
1. Define their personality traits and background
2. Specify how they should interact with users
3. Include their speaking style and mannerisms
4. Be at least 200 characters long
5. Be written in second person ("You are...")`, name)
	}

	return fmt.Sprintf(`%s

Format it similar to this example:
"You are %s, a [brief description]. You [personality traits]. You have [background details]. When interacting with humans, you [interaction style]. Your communication style is [speaking style details]..."`, base, name)
}

// BehaviorSystemPrompt is the system prompt for behavior generation.
const BehaviorSystemPrompt = "You are an expert at creating AI companion personalities and emulating real people's characteristics."

// ClassifierSystemPrompt asks the model to choose the main responder.
const ClassifierSystemPrompt = "Analyze which bot should be the main responder. Return only the index number (0 to N-1)."

// ClassifierUserPrompt lists the candidates for the main-responder choice.
func ClassifierUserPrompt(prompt string, candidates []models.Companion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message: %q\n\nBots:\n", prompt)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d: %s - %s\n", i, c.Name, c.Description)
	}
	return b.String()
}
