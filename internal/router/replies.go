package router

import (
	"fmt"
	"strings"

	"aide/internal/models"
)

func conversationalReply(intent models.Intent) string {
	if intent == models.IntentThanks {
		return "You're welcome!"
	}
	return "Hello! How can I help you today?"
}

// clarificationFor returns the question asked when confidence is below
// the threshold. Questions are intent-specific so the follow-up fills in
// exactly what is missing.
func clarificationFor(intent models.Intent) string {
	switch intent {
	case models.IntentSendEmail:
		return "It sounds like you want to send an email. Who should it go to, and what about?"
	case models.IntentCreateReminder:
		return "Should I set a reminder? Tell me what for and when."
	case models.IntentCreateTask:
		return "Should I add a task? What should it say?"
	case models.IntentCreateEvent:
		return "Should I put something on your calendar? What and when?"
	case models.IntentCheckCalendar:
		return "Do you want me to check your calendar? For which day?"
	case models.IntentSaveKnowledge:
		return "Should I save that as a note? What exactly should I keep?"
	case models.IntentSearch, models.IntentResearch:
		return "What exactly would you like me to look up?"
	case models.IntentStartLoop:
		return "Should I start a multi-step task? Describe the steps you have in mind."
	default:
		return "I'm not sure what you mean. Could you rephrase that?"
	}
}

// confirmationFor renders the pending-approval message for a mutating
// action, folding in the extracted entities where they help.
func confirmationFor(actionType models.ActionType, classification models.IntentClassification) string {
	switch actionType {
	case models.ActionTypeSendEmail:
		recipient := classification.Entities.First("recipient")
		if recipient == "" {
			recipient = "the recipient"
		}
		return fmt.Sprintf("I've queued an email to %s for your approval.", recipient)
	case models.ActionTypeCreateReminder:
		return withDetail("I've queued a reminder for your approval", classification.Entities.First("time"))
	case models.ActionTypeCreateTask:
		return "I've queued a new task for your approval."
	case models.ActionTypeCreateEvent:
		return withDetail("I've queued a calendar event for your approval", classification.Entities.First("time"))
	case models.ActionTypeSaveKnowledge:
		return "I've queued a note for your approval."
	case models.ActionTypeRunLoop:
		return "I've queued a multi-step task for your approval. It will start once you approve it."
	default:
		return "I'm not sure how to do that safely, so I've queued it for your review."
	}
}

func withDetail(base, detail string) string {
	if strings.TrimSpace(detail) == "" {
		return base + "."
	}
	return fmt.Sprintf("%s (%s).", base, detail)
}
