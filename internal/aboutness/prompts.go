package aboutness

import "fmt"

const sharedRules = `Write one paragraph of %d to %d characters. No lists, no headings, no quotes from the lyrics, no facts you are not sure of.
End with exactly one tag: [confidence: low], [confidence: medium] or [confidence: high], reflecting how well you know this song.`

var axisInstructions = map[Axis]string{
	Emotions: "Describe how the song feels: its mood, energy, emotional arc and sonic texture.",
	Moments:  "Describe the moments the song fits: scenes, activities, time of day and social setting.",
}

func systemPrompt(axis Axis) string {
	return axisInstructions[axis] + "\n" + fmt.Sprintf(sharedRules, TargetMinChars, TargetMaxChars)
}

func userPrompt(title, artist string) string {
	return fmt.Sprintf("Song: %q by %s", title, artist)
}

// retryPrompt repeats the request with the reason the previous answer failed.
func retryPrompt(title, artist string, previous error) string {
	return fmt.Sprintf("%s\n\nYour previous answer was rejected (%v). Follow the format exactly.",
		userPrompt(title, artist), previous)
}
