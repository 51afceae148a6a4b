package generation

import "fmt"

const contentSystem = "You are a concise technology writer. Write plain text without markdown headings."

func trendPrompt(niche string) string {
	return fmt.Sprintf("Find the single most discussed news story in %s right now. "+
		"Answer with the story as a short headline on the first line, then two sentences of context.", niche)
}

func thumbnailPrompt(title, niche string) string {
	return fmt.Sprintf("YouTube thumbnail for a video titled %q about %s. "+
		"Bold composition, high contrast, one clear subject, no small text.", title, niche)
}

func sentimentPrompt(text string) string {
	return fmt.Sprintf("Classify the sentiment of this comment as exactly one word "+
		"(positive, negative or neutral):\n\n%s", text)
}

func replyPrompt(comment, tone string) string {
	if tone == "" {
		tone = "friendly"
	}
	return fmt.Sprintf("Write a short %s reply (one or two sentences) to this comment "+
		"on our post. Do not use hashtags.\n\nComment: %s", tone, comment)
}
