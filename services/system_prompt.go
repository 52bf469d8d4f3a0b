package services

import "github.com/itish2003/voicenotes/models"

const systemPromptPrefix = "You are a helpful assistant that answers questions based on the following context: \n\n"

// BuildSystemPrompt embeds the retrieved context verbatim into the system instruction.
// An empty context still yields a valid prompt; the model then answers without notes.
func BuildSystemPrompt(context string) string {
	return systemPromptPrefix + context
}

// buildConversation returns the turns sent after the system instruction.
func buildConversation(question string) []models.ChatTurn {
	return []models.ChatTurn{{Role: models.RoleUser, Content: question}}
}
