// Package personalize swaps computed responses for courtesy replies when a
// query thanks or greets the assistant.
package personalize

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/bank-assistant/internal/intent"
)

// Policy decides which responses the override may replace.
type Policy string

const (
	// OverrideAll replaces any response, including intent-matched ones.
	OverrideAll Policy = "override_all"
	// FallbackOnly replaces only responses from the generative fallback.
	FallbackOnly Policy = "fallback_only"
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case OverrideAll, FallbackOnly:
		return p, nil
	case "":
		return OverrideAll, nil
	default:
		return "", fmt.Errorf("unknown personalization policy %q", s)
	}
}

// Source tells the personalizer which branch computed a response.
type Source int

const (
	SourceIntent Source = iota
	SourceFallback
)

var (
	gratitudeCues = map[string]struct{}{
		"thank": {}, "thanks": {}, "thankyou": {}, "thx": {},
		"appreciate": {}, "appreciated": {},
	}
	greetingCues = map[string]struct{}{
		"hi": {}, "hello": {}, "hey": {},
	}
)

type template func(name, timeOfDay string) string

var acknowledgements = []template{
	func(name, _ string) string {
		return fmt.Sprintf("You're welcome, %s! Is there anything else I can help you with?", name)
	},
	func(name, _ string) string {
		return fmt.Sprintf("Happy to help, %s! Let me know if you need anything else.", name)
	},
	func(name, _ string) string {
		return fmt.Sprintf("Anytime, %s! Have a great day.", name)
	},
}

var greetings = []template{
	func(name, _ string) string {
		return fmt.Sprintf("Hello %s! How can I help you with your banking today?", name)
	},
	func(name, _ string) string {
		return fmt.Sprintf("Hi %s! Ask me about your balance, transactions, cards, loans or transfers.", name)
	},
	func(name, tod string) string {
		return fmt.Sprintf("Good %s, %s! What can I do for you?", tod, name)
	},
}

// Personalizer applies courtesy overrides. Template choice comes from an
// injected random source so it is reproducible in tests. It is safe for
// concurrent use.
type Personalizer struct {
	policy Policy
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a personalizer. A nil rng is seeded from the clock; a nil now
// uses the wall clock.
func New(policy Policy, rng *rand.Rand, now func() time.Time) *Personalizer {
	if now == nil {
		now = time.Now
	}
	if rng == nil {
		seed := uint64(now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	if policy == "" {
		policy = OverrideAll
	}
	return &Personalizer{policy: policy, rng: rng, now: now}
}

// Policy returns the configured precedence policy.
func (p *Personalizer) Policy() Policy {
	return p.policy
}

// Apply returns the response to send for query. When the query carries a
// gratitude or greeting cue and the policy allows it, computed is replaced
// by a template addressed to name and the second result is true. A greeting
// cue is checked after gratitude, so it wins when both are present.
func (p *Personalizer) Apply(query, name, computed string, src Source) (string, bool) {
	if p.policy == FallbackOnly && src != SourceFallback {
		return computed, false
	}

	if strings.TrimSpace(name) == "" {
		name = "there"
	}

	tokens := intent.Tokenize(query)
	out, replaced := computed, false

	if hasGratitude(tokens) {
		out, replaced = p.pick(acknowledgements, name), true
	}
	if hasCue(tokens, greetingCues) {
		out, replaced = p.pick(greetings, name), true
	}
	return out, replaced
}

func (p *Personalizer) pick(templates []template, name string) string {
	p.mu.Lock()
	i := p.rng.IntN(len(templates))
	p.mu.Unlock()
	return templates[i](name, TimeOfDay(p.now().Hour()))
}

func hasGratitude(tokens []string) bool {
	if hasCue(tokens, gratitudeCues) {
		return true
	}
	for _, t := range tokens {
		if strings.HasPrefix(t, "thank") {
			return true
		}
	}
	return false
}

func hasCue(tokens []string, cues map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := cues[t]; ok {
			return true
		}
	}
	return false
}

// TimeOfDay buckets an hour of the day: morning [5,12), afternoon [12,17),
// evening [17,22), night otherwise.
func TimeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// Acknowledgements renders every acknowledgement template for name. It is
// used to check responses against the fixed set.
func Acknowledgements(name string) []string {
	return render(acknowledgements, name, "")
}

// Greetings renders every greeting template for name at the given time of
// day.
func Greetings(name, timeOfDay string) []string {
	return render(greetings, name, timeOfDay)
}

func render(templates []template, name, tod string) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = t(name, tod)
	}
	return out
}
