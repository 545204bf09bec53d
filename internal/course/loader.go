package course

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Definition is the static course data loaded at level start.
type Definition struct {
	Version int `yaml:"version"`
	Course  struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"course"`
	Spawn         Pose            `yaml:"spawn"`
	Checkpoints   []CheckpointDef `yaml:"checkpoints"`
	Levels        []LevelDef      `yaml:"levels"`
	FinalGate     string          `yaml:"final_gate"`
	PhotoTargets  []string        `yaml:"photo_targets"`
	Objects       []ObjectPose    `yaml:"objects"`
	Hazards       []HazardDef     `yaml:"hazards"`
	Scoring       ScoringDef      `yaml:"scoring"`
	BannerSeconds float64         `yaml:"banner_seconds"`
}

// LevelDef groups plate groups and the objects unlocked when they all complete.
type LevelDef struct {
	Level   int        `yaml:"level"`
	Unlocks []string   `yaml:"unlocks"`
	Groups  []GroupDef `yaml:"groups"`
}

// GroupDef lists the plates of one group and the door it opens.
type GroupDef struct {
	GroupID int      `yaml:"group_id"`
	Door    string   `yaml:"door"`
	Plates  []string `yaml:"plates"`
}

// HazardDef is a volume that resets the player after a short delay.
type HazardDef struct {
	ID           string  `yaml:"id"`
	DelaySeconds float64 `yaml:"delay_seconds"`
}

// Delay returns the hazard delay as a duration.
func (h HazardDef) Delay() time.Duration {
	return seconds(h.DelaySeconds)
}

// ScoringDef selects the scoring policy and its thresholds.
type ScoringDef struct {
	Policy     string            `yaml:"policy"`
	Time       *TimePolicy       `yaml:"time"`
	Completion *CompletionPolicy `yaml:"completion"`
}

// Build returns the configured policy, filling defaults for omitted thresholds.
func (s ScoringDef) Build() (Policy, error) {
	switch s.Policy {
	case PolicyTime, "":
		p := DefaultTimePolicy()
		if s.Time != nil {
			p = *s.Time
		}
		return p, ValidatePolicy(p)
	case PolicyCompletion:
		p := DefaultCompletionPolicy()
		if s.Completion != nil {
			p = *s.Completion
		}
		return p, ValidatePolicy(p)
	default:
		return nil, fmt.Errorf("unknown scoring policy: %s", s.Policy)
	}
}

// LoadCourse loads and validates a course definition from a YAML file.
func LoadCourse(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read course file: %w", err)
	}
	return ParseCourse(data)
}

// ParseCourse decodes and validates a course definition.
func ParseCourse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse course YAML: %w", err)
	}
	if def.Version != 1 {
		return nil, fmt.Errorf("unsupported course version: %d", def.Version)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks identifiers and scoring configuration.
func (d *Definition) Validate() error {
	plates := make(map[string]GroupKey)
	for _, l := range d.Levels {
		groups := make(map[int]bool)
		for _, g := range l.Groups {
			if groups[g.GroupID] {
				return fmt.Errorf("level %d: duplicate group %d", l.Level, g.GroupID)
			}
			groups[g.GroupID] = true
			if len(g.Plates) == 0 {
				return fmt.Errorf("level %d group %d: no plates", l.Level, g.GroupID)
			}
			for _, id := range g.Plates {
				if id == "" {
					return fmt.Errorf("level %d group %d: empty plate id", l.Level, g.GroupID)
				}
				if prev, ok := plates[id]; ok {
					return fmt.Errorf("plate %s registered twice (level %d group %d)", id, prev.Level, prev.GroupID)
				}
				plates[id] = GroupKey{Level: l.Level, GroupID: g.GroupID}
			}
		}
	}

	targets := make(map[string]bool)
	for _, id := range d.PhotoTargets {
		if targets[id] {
			return fmt.Errorf("photo target %s listed twice", id)
		}
		targets[id] = true
	}

	hazards := make(map[string]bool)
	for _, h := range d.Hazards {
		if h.ID == "" {
			return fmt.Errorf("hazard with empty id")
		}
		if hazards[h.ID] {
			return fmt.Errorf("hazard %s listed twice", h.ID)
		}
		if h.DelaySeconds < 0 {
			return fmt.Errorf("hazard %s: negative delay", h.ID)
		}
		hazards[h.ID] = true
	}

	if _, err := d.Scoring.Build(); err != nil {
		return err
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
