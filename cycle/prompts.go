package cycle

import (
	"fmt"
	"strings"
)

func contentPrompt(topic, trendContext, niche string) string {
	return fmt.Sprintf("Write an engaging social media post (120 to 180 words) about %q for an audience interested in %s. "+
		"End with one question to the reader.\n\nBackground:\n%s", topic, niche, trendContext)
}

func titlePrompt(topic, content string) string {
	return fmt.Sprintf("Write one catchy video title (under 70 characters, no quotes) that matches this post "+
		"about %q.\n\nPost:\n%s", topic, content)
}

func imagePromptPrompt(topic, content string) string {
	return fmt.Sprintf("Describe, in one paragraph, a striking photorealistic image that illustrates this post. "+
		"No text in the image.\n\nTopic: %s\n\nPost:\n%s", topic, content)
}

func videoPrompt(topic string) string {
	return fmt.Sprintf("Slow cinematic camera move bringing this illustration of %q to life. Subtle motion, no text.", topic)
}

// topicFrom takes the first non-empty line of the trend text as the topic
func topicFrom(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "#*-\"' "))
		if line != "" {
			return line
		}
	}
	return ""
}

// cleanTitle strips quotes and keeps the first line of a generated title
func cleanTitle(title string) string {
	return strings.Trim(topicFrom(title), "\"'")
}
