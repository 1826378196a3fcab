package catalog

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LoadFile reads a TOML economy file and layers it over the defaults.
// Entries in the file replace defaults with the same key; a trigger list in
// the file replaces the default list for that action type.
//
//	[actions.quiz_publish]
//	points = 20
//	description = "Published a quiz"
//
//	[achievements.quiz_author]
//	target = 5
//	bonus = 150
//
//	[achievement_triggers]
//	quiz_publish = ["quiz_author"]
func LoadFile(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()

	var override Tables
	if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&override); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := override.validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return New(Merge(DefaultTables(), override)), nil
}

// Merge layers override on top of base and returns the result.
func Merge(base, override Tables) Tables {
	out := New(base).Tables()
	for k, v := range override.Actions {
		out.Actions[k] = v
	}
	for k, v := range override.Achievements {
		out.Achievements[k] = v
	}
	for k, v := range override.Challenges {
		out.Challenges[k] = v
	}
	for k, v := range override.AchievementTrigger {
		out.AchievementTrigger[k] = append([]string(nil), v...)
	}
	for k, v := range override.ChallengeTrigger {
		out.ChallengeTrigger[k] = append([]string(nil), v...)
	}
	return out
}

func (t Tables) validate() error {
	for k, a := range t.Actions {
		if a.Points < 0 {
			return fmt.Errorf("action %s: points must not be negative", k)
		}
		if a.Description == "" {
			return fmt.Errorf("action %s: description is required", k)
		}
	}
	for k, r := range t.Achievements {
		if r.Target < 1 || r.Bonus < 0 {
			return fmt.Errorf("achievement %s: target must be >= 1 and bonus >= 0", k)
		}
	}
	for k, r := range t.Challenges {
		if r.Target < 1 || r.Bonus < 0 {
			return fmt.Errorf("challenge %s: target must be >= 1 and bonus >= 0", k)
		}
	}
	return nil
}
