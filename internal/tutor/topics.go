package tutor

import (
	"hash/fnv"
	"sort"
	"time"
)

// Topic is a named conversation theme with starter phrases the assistant can
// open with.
type Topic struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Starters []string `json:"starters"`
}

var topicCatalog = map[string]Topic{
	"daily_life": {
		ID:   "daily_life",
		Name: "Daily Life & Routines",
		Starters: []string{
			"Tell me about your typical morning routine.",
			"What did you do last weekend?",
			"How do you usually spend your free time?",
			"What's your favorite part of the day and why?",
		},
	},
	"travel": {
		ID:   "travel",
		Name: "Travel & Places",
		Starters: []string{
			"Have you traveled anywhere interesting recently?",
			"If you could visit any country, where would you go?",
			"Tell me about your hometown.",
			"What's the most beautiful place you've ever seen?",
		},
	},
	"food": {
		ID:   "food",
		Name: "Food & Cooking",
		Starters: []string{
			"What's your favorite food and why?",
			"Can you cook? What's your specialty?",
			"Tell me about a traditional dish from your country.",
			"What did you have for lunch today?",
		},
	},
	"hobbies": {
		ID:   "hobbies",
		Name: "Hobbies & Interests",
		Starters: []string{
			"What do you like to do in your free time?",
			"Have you picked up any new hobbies recently?",
			"What's something you're passionate about?",
			"Do you prefer indoor or outdoor activities?",
		},
	},
	"work_study": {
		ID:   "work_study",
		Name: "Work & Study",
		Starters: []string{
			"What do you do for work or study?",
			"What's the most challenging part of your job or studies?",
			"What are your career goals?",
			"How do you stay motivated at work or school?",
		},
	},
	"future_goals": {
		ID:   "future_goals",
		Name: "Goals & Dreams",
		Starters: []string{
			"What are you hoping to achieve this year?",
			"If you could learn any new skill, what would it be?",
			"Where do you see yourself in five years?",
			"What's one goal you're working towards right now?",
		},
	},
}

// Topics lists the catalog in stable id order.
func Topics() []Topic {
	out := make([]Topic, 0, len(topicCatalog))
	for _, t := range topicCatalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// KnownTopic reports whether id names a catalog topic.
func KnownTopic(id string) bool {
	_, ok := topicCatalog[id]
	return ok
}

// Starter picks a starter phrase for the topic, or from the whole catalog
// when the id is unknown or empty. The pick varies by wall-clock minute but
// is otherwise stable, so immediate retries see the same phrase.
func Starter(id string) string {
	return starterAt(id, time.Now())
}

func starterAt(id string, now time.Time) string {
	pool := topicCatalog[id].Starters
	if len(pool) == 0 {
		for _, t := range Topics() {
			pool = append(pool, t.Starters...)
		}
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	h.Write([]byte(now.UTC().Format("200601021504")))
	return pool[int(h.Sum32())%len(pool)]
}
