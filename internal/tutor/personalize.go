package tutor

import (
	"strings"

	"github.com/ecolucci/parlo/internal/transcript"
)

// Personalization mined from the turn history. All of it is derived on demand
// from the transcript, so a loaded conversation personalizes exactly like a
// live one.
const (
	questionMemory    = 10
	questionThreshold = 0.7
	replyThreshold    = 0.6
	topicWindow       = 6
)

// interestCategories maps conversational themes to the keywords that signal
// them in a user turn. Order fixes the order interests surface in the prompt.
var interestCategories = []struct {
	name     string
	keywords []string
}{
	{"cooking", []string{"cook", "recipe", "food", "kitchen", "meal"}},
	{"travel", []string{"travel", "trip", "vacation", "country", "visit"}},
	{"sports", []string{"sport", "exercise", "gym", "football", "soccer", "basketball"}},
	{"music", []string{"music", "song", "band", "concert", "guitar", "piano"}},
	{"work", []string{"work", "job", "career", "office", "colleague", "boss"}},
	{"family", []string{"family", "parents", "siblings", "children", "kids"}},
	{"movies", []string{"movie", "film", "cinema", "actor", "director"}},
	{"books", []string{"book", "read", "novel", "author", "library"}},
	{"technology", []string{"computer", "phone", "app", "internet", "software"}},
}

var positiveWords = []string{"happy", "great", "good", "love", "amazing", "wonderful", "excited"}
var negativeWords = []string{"sad", "bad", "terrible", "hate", "awful", "disappointed", "worried"}

// personalizationContext summarizes what the history reveals about the user,
// formatted for appending to the system prompt. Empty when nothing stands out.
func personalizationContext(history []transcript.Turn) string {
	var parts []string
	if interests := extractInterests(history); len(interests) > 0 {
		parts = append(parts, "User interests: "+strings.Join(interests, ", "))
	}
	if mood := lastUserSentiment(history); mood != "" && mood != "neutral" {
		parts = append(parts, "User mood: "+mood)
	}
	if topics := recentTopics(history); len(topics) > 0 {
		parts = append(parts, "Recent topics discussed: "+strings.Join(topics, ", "))
	}
	return strings.Join(parts, " | ")
}

// extractInterests scans user turns for interest keywords, in first-mention
// order.
func extractInterests(history []transcript.Turn) []string {
	seen := make(map[string]bool)
	var interests []string
	for _, t := range history {
		if t.Speaker != transcript.SpeakerUser {
			continue
		}
		text := strings.ToLower(t.Text)
		for _, cat := range interestCategories {
			if seen[cat.name] {
				continue
			}
			for _, kw := range cat.keywords {
				if strings.Contains(text, kw) {
					seen[cat.name] = true
					interests = append(interests, cat.name)
					break
				}
			}
		}
	}
	return interests
}

// lastUserSentiment classifies the most recent user turn by counting mood
// words. Returns "" when there is no user turn yet.
func lastUserSentiment(history []transcript.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Speaker == transcript.SpeakerUser {
			return detectSentiment(history[i].Text)
		}
	}
	return ""
}

func detectSentiment(text string) string {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}

// recentTopics pulls up to five distinct meaningful words from the last few
// turns, either speaker. A word counts when it is alphabetic and longer than
// four letters; the first two per turn are taken.
func recentTopics(history []transcript.Turn) []string {
	turns := history
	if len(turns) > topicWindow {
		turns = turns[len(turns)-topicWindow:]
	}
	seen := make(map[string]bool)
	var topics []string
	for _, t := range turns {
		taken := 0
		for _, w := range strings.Fields(strings.ToLower(t.Text)) {
			if taken == 2 {
				break
			}
			if len(w) <= 4 || !isAlpha(w) {
				continue
			}
			taken++
			if !seen[w] {
				seen[w] = true
				topics = append(topics, w)
			}
		}
	}
	if len(topics) > 5 {
		topics = topics[len(topics)-5:]
	}
	return topics
}

func isAlpha(w string) bool {
	for _, r := range w {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(w) > 0
}

// ReplyRepetitive reports whether a candidate reply re-asks a question the
// assistant already asked, or paraphrases one of its own recent replies. The
// caller may then ask the gateway for a fresh reply.
func ReplyRepetitive(reply string, history []transcript.Turn) bool {
	asked := recentQuestions(history)
	for _, q := range splitQuestions(reply) {
		for _, prev := range asked {
			if wordSimilarity(q, prev) > questionThreshold {
				return true
			}
		}
	}

	var recentReplies []string
	turns := history
	if len(turns) > topicWindow {
		turns = turns[len(turns)-topicWindow:]
	}
	for _, t := range turns {
		if t.Speaker == transcript.SpeakerAssistant {
			recentReplies = append(recentReplies, t.Text)
		}
	}
	if len(recentReplies) < 2 {
		return false
	}
	lower := strings.ToLower(reply)
	for _, prev := range recentReplies {
		if wordSimilarity(lower, strings.ToLower(prev)) > replyThreshold {
			return true
		}
	}
	return false
}

// recentQuestions collects the assistant's last questions across the whole
// history, lowercased, bounded by questionMemory.
func recentQuestions(history []transcript.Turn) []string {
	var questions []string
	for _, t := range history {
		if t.Speaker != transcript.SpeakerAssistant {
			continue
		}
		questions = append(questions, splitQuestions(t.Text)...)
	}
	if len(questions) > questionMemory {
		questions = questions[len(questions)-questionMemory:]
	}
	return questions
}

func splitQuestions(text string) []string {
	if !strings.Contains(text, "?") {
		return nil
	}
	var questions []string
	for _, part := range strings.Split(text, "?") {
		part = strings.TrimSpace(part)
		if part != "" {
			questions = append(questions, strings.ToLower(part)+"?")
		}
	}
	return questions
}

// wordSimilarity is the Jaccard index of the two texts' word sets.
func wordSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	union := len(setB)
	for w := range setA {
		if setB[w] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}
