package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// RuleSeedFile is the YAML layout for bootstrapping an org's rules and
// business hours.
type RuleSeedFile struct {
	OrgID         string              `yaml:"org_id"`
	BusinessHours []BusinessHoursSeed `yaml:"business_hours"`
	Rules         []RuleSeed          `yaml:"rules"`
}

// BusinessHoursSeed describes one working-time window.
type BusinessHoursSeed struct {
	Name        string `yaml:"name"`
	Timezone    string `yaml:"timezone"`
	WorkingDays []int  `yaml:"working_days"`
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	Enabled     *bool  `yaml:"enabled"`
}

// RuleSeed describes one SLA rule.
type RuleSeed struct {
	Name           string           `yaml:"name"`
	Description    string           `yaml:"description"`
	InfoType       string           `yaml:"info_type"`
	Priority       string           `yaml:"priority"`
	Channel        string           `yaml:"channel"`
	ResponseTime   string           `yaml:"response_time"`
	ResolutionTime string           `yaml:"resolution_time"`
	BusinessHours  string           `yaml:"business_hours"`
	Default        bool             `yaml:"default"`
	Escalations    []EscalationSeed `yaml:"escalations"`
}

// EscalationSeed describes one escalation rung.
type EscalationSeed struct {
	Level  int      `yaml:"level"`
	After  string   `yaml:"after"`
	Target string   `yaml:"target"`
	Notify []string `yaml:"notify"`
}

// SeedSet is the resolved, validated content of a rule seed file.
type SeedSet struct {
	OrgID         uuid.UUID
	BusinessHours []models.BusinessHoursConfig
	Rules         []models.SLARule
}

// LoadRuleSeedFile reads and resolves a YAML rule seed file.
func LoadRuleSeedFile(path string) (*SeedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule seed file: %w", err)
	}
	return ParseRuleSeed(data)
}

// ParseRuleSeed resolves raw YAML into validated models. Business hours
// are referenced by name from rules within the same file.
func ParseRuleSeed(data []byte) (*SeedSet, error) {
	var file RuleSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule seed yaml: %w", err)
	}

	orgID, err := uuid.Parse(file.OrgID)
	if err != nil {
		return nil, fmt.Errorf("parse org_id: %w", err)
	}

	set := &SeedSet{OrgID: orgID}
	hoursByName := make(map[string]uuid.UUID, len(file.BusinessHours))

	for _, seed := range file.BusinessHours {
		cfg := models.NewBusinessHoursConfig(orgID, seed.Name)
		if seed.Timezone != "" {
			cfg.Timezone = seed.Timezone
		}
		for _, d := range seed.WorkingDays {
			cfg.WorkingDays = append(cfg.WorkingDays, time.Weekday(d))
		}
		if cfg.StartMinute, err = parseClock(seed.Start); err != nil {
			return nil, fmt.Errorf("business hours %q start: %w", seed.Name, err)
		}
		if cfg.EndMinute, err = parseClock(seed.End); err != nil {
			return nil, fmt.Errorf("business hours %q end: %w", seed.Name, err)
		}
		if seed.Enabled != nil {
			cfg.Enabled = *seed.Enabled
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("business hours %q: %w", seed.Name, err)
		}
		hoursByName[seed.Name] = cfg.ID
		set.BusinessHours = append(set.BusinessHours, *cfg)
	}

	defaults := 0
	for _, seed := range file.Rules {
		rule := models.NewSLARule(orgID, seed.Name, seed.InfoType, models.PriorityTier(seed.Priority))
		rule.Description = seed.Description
		rule.IsDefault = seed.Default
		if seed.Default {
			defaults++
		}
		if seed.Channel != "" {
			c := models.Channel(seed.Channel)
			rule.Channel = &c
		}
		if rule.ResponseTimeMinutes, err = parseMinutes(seed.ResponseTime); err != nil {
			return nil, fmt.Errorf("rule %q response_time: %w", seed.Name, err)
		}
		if rule.ResolutionTimeMinutes, err = parseMinutes(seed.ResolutionTime); err != nil {
			return nil, fmt.Errorf("rule %q resolution_time: %w", seed.Name, err)
		}
		if seed.BusinessHours != "" {
			id, ok := hoursByName[seed.BusinessHours]
			if !ok {
				return nil, fmt.Errorf("rule %q references unknown business hours %q", seed.Name, seed.BusinessHours)
			}
			rule.BusinessHoursID = &id
		}
		for _, esc := range seed.Escalations {
			after, err := parseMinutes(esc.After)
			if err != nil {
				return nil, fmt.Errorf("rule %q escalation level %d: %w", seed.Name, esc.Level, err)
			}
			lvl := models.EscalationLevel{
				Level:                esc.Level,
				EscalateAfterMinutes: after,
				Target:               esc.Target,
			}
			for _, n := range esc.Notify {
				lvl.NotifyChannels = append(lvl.NotifyChannels, models.NotifyChannel(n))
			}
			rule.EscalationLevels = append(rule.EscalationLevels, lvl)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", seed.Name, err)
		}
		set.Rules = append(set.Rules, *rule)
	}

	if defaults > 1 {
		return nil, fmt.Errorf("seed file declares %d default rules, at most one allowed", defaults)
	}
	return set, nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h*60 + m, nil
}

// parseMinutes converts a Go duration string to whole minutes.
func parseMinutes(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("duration is required")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 || d%time.Minute != 0 {
		return 0, fmt.Errorf("duration %q must be a positive whole number of minutes", s)
	}
	return int(d / time.Minute), nil
}
