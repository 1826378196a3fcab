// Package catalog holds the point economy: what each action is worth and
// which achievements and challenges it advances.
package catalog

import "sort"

// Fallbacks for ids and action types the tables do not list.
const (
	DefaultPoints           = 10
	DefaultDescription      = "Completed a task"
	DefaultTarget           = 1
	DefaultAchievementBonus = 100
	DefaultChallengeBonus   = 50
)

// Action is the point value and label of one action type.
type Action struct {
	Points      int    `toml:"points" json:"points"`
	Description string `toml:"description" json:"description"`
}

// Rule is the completion target and bonus of an achievement or challenge.
type Rule struct {
	Target int `toml:"target" json:"target"`
	Bonus  int `toml:"bonus" json:"bonus"`
}

// Catalog is an immutable point economy. Build one with Default, New or
// LoadFile; lookups never fail.
type Catalog struct {
	actions            map[string]Action
	achievements       map[string]Rule
	challenges         map[string]Rule
	achievementTrigger map[string][]string
	challengeTrigger   map[string][]string
}

// Tables is the plain-data form of a catalog.
type Tables struct {
	Actions            map[string]Action   `toml:"actions"`
	Achievements       map[string]Rule     `toml:"achievements"`
	Challenges         map[string]Rule     `toml:"challenges"`
	AchievementTrigger map[string][]string `toml:"achievement_triggers"`
	ChallengeTrigger   map[string][]string `toml:"challenge_triggers"`
}

// New copies tables into a Catalog so later edits to tables have no effect.
func New(t Tables) *Catalog {
	c := &Catalog{
		actions:            make(map[string]Action, len(t.Actions)),
		achievements:       make(map[string]Rule, len(t.Achievements)),
		challenges:         make(map[string]Rule, len(t.Challenges)),
		achievementTrigger: make(map[string][]string, len(t.AchievementTrigger)),
		challengeTrigger:   make(map[string][]string, len(t.ChallengeTrigger)),
	}
	for k, v := range t.Actions {
		c.actions[k] = v
	}
	for k, v := range t.Achievements {
		c.achievements[k] = v
	}
	for k, v := range t.Challenges {
		c.challenges[k] = v
	}
	for k, v := range t.AchievementTrigger {
		c.achievementTrigger[k] = append([]string(nil), v...)
	}
	for k, v := range t.ChallengeTrigger {
		c.challengeTrigger[k] = append([]string(nil), v...)
	}
	return c
}

// Tables returns a copy of the catalog's tables.
func (c *Catalog) Tables() Tables {
	return Tables{
		Actions:            c.actionsCopy(),
		Achievements:       copyRules(c.achievements),
		Challenges:         copyRules(c.challenges),
		AchievementTrigger: copyTriggers(c.achievementTrigger),
		ChallengeTrigger:   copyTriggers(c.challengeTrigger),
	}
}

// PointsFor returns the points an action type earns.
func (c *Catalog) PointsFor(actionType string) int {
	if a, ok := c.actions[actionType]; ok {
		return a.Points
	}
	return DefaultPoints
}

// DescriptionFor returns the activity log label of an action type.
func (c *Catalog) DescriptionFor(actionType string) string {
	if a, ok := c.actions[actionType]; ok {
		return a.Description
	}
	return DefaultDescription
}

// AchievementsFor lists the achievement ids an action type advances.
func (c *Catalog) AchievementsFor(actionType string) []string {
	return append([]string(nil), c.achievementTrigger[actionType]...)
}

// ChallengesFor lists the challenge ids an action type advances.
func (c *Catalog) ChallengesFor(actionType string) []string {
	return append([]string(nil), c.challengeTrigger[actionType]...)
}

// Achievement returns the rule for an achievement id.
func (c *Catalog) Achievement(id string) Rule {
	if r, ok := c.achievements[id]; ok {
		return r
	}
	return Rule{Target: DefaultTarget, Bonus: DefaultAchievementBonus}
}

// Challenge returns the rule for a challenge id.
func (c *Catalog) Challenge(id string) Rule {
	if r, ok := c.challenges[id]; ok {
		return r
	}
	return Rule{Target: DefaultTarget, Bonus: DefaultChallengeBonus}
}

// ActionTypes returns the known action types in sorted order.
func (c *Catalog) ActionTypes() []string {
	out := make([]string, 0, len(c.actions))
	for k := range c.actions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Action returns the entry for a known action type.
func (c *Catalog) Action(actionType string) (Action, bool) {
	a, ok := c.actions[actionType]
	return a, ok
}

func (c *Catalog) actionsCopy() map[string]Action {
	out := make(map[string]Action, len(c.actions))
	for k, v := range c.actions {
		out[k] = v
	}
	return out
}

func copyRules(in map[string]Rule) map[string]Rule {
	out := make(map[string]Rule, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyTriggers(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
