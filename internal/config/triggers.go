package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"templeops/internal/model"
)

// TriggerDefault is what a trigger rule falls back to when the inbound
// payload does not say otherwise.
type TriggerDefault struct {
	Priority   model.Priority
	Visibility model.VisibilityScope
	// LeadTime offsets the due time from the moment the payload names.
	// Each rule decides the direction.
	LeadTime time.Duration
}

type TriggerDefaults map[model.SourceModule]TriggerDefault

// triggerDefaultFile mirrors one entry of the YAML file:
//
//	inventory:
//	  priority: high
//	  visibility: role:store_keeper
//	  lead_time: 24h
type triggerDefaultFile struct {
	Priority   string        `yaml:"priority"`
	Visibility string        `yaml:"visibility"`
	LeadTime   time.Duration `yaml:"lead_time"`
}

func BuiltinTriggerDefaults() TriggerDefaults {
	return TriggerDefaults{
		model.SourceFreelancer: {
			Priority:   model.PriorityHigh,
			Visibility: model.RoleScope(model.RoleManager),
			LeadTime:   48 * time.Hour,
		},
		model.SourceInventory: {
			Priority:   model.PriorityHigh,
			Visibility: model.RoleScope(model.RoleStoreKeeper),
			LeadTime:   24 * time.Hour,
		},
		model.SourceVolunteer: {
			Priority:   model.PriorityMedium,
			Visibility: model.AssigneeOnlyScope(),
			LeadTime:   0,
		},
		model.SourceEvent: {
			Priority:   model.PriorityMedium,
			Visibility: model.PublicScope(),
			LeadTime:   24 * time.Hour,
		},
	}
}

// LoadTriggerDefaults overlays the YAML file at path onto the built-in
// defaults. An empty path or a missing file yields the built-ins.
func LoadTriggerDefaults(path string) (TriggerDefaults, error) {
	defaults := BuiltinTriggerDefaults()
	if path == "" {
		return defaults, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trigger defaults: %w", err)
	}
	return ParseTriggerDefaults(raw, defaults)
}

func ParseTriggerDefaults(raw []byte, base TriggerDefaults) (TriggerDefaults, error) {
	var file map[string]triggerDefaultFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode trigger defaults: %w", err)
	}
	out := make(TriggerDefaults, len(base))
	for src, def := range base {
		out[src] = def
	}
	for name, entry := range file {
		src := model.SourceModule(name)
		if !src.Valid() {
			return nil, fmt.Errorf("trigger defaults: unknown source module %q", name)
		}
		def := out[src]
		if entry.Priority != "" {
			p, err := model.ParsePriority(entry.Priority)
			if err != nil {
				return nil, fmt.Errorf("trigger defaults %s: %w", name, err)
			}
			def.Priority = p
		}
		if entry.Visibility != "" {
			scope, err := ParseVisibility(entry.Visibility)
			if err != nil {
				return nil, fmt.Errorf("trigger defaults %s: %w", name, err)
			}
			def.Visibility = scope
		}
		if entry.LeadTime != 0 {
			def.LeadTime = entry.LeadTime
		}
		out[src] = def
	}
	return out, nil
}

// ParseVisibility reads "public", "assignee_only" or "role:<role>".
func ParseVisibility(s string) (model.VisibilityScope, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == string(model.VisibilityPublic):
		return model.PublicScope(), nil
	case s == string(model.VisibilityAssigneeOnly):
		return model.AssigneeOnlyScope(), nil
	case strings.HasPrefix(s, "role:"):
		role := model.Role(strings.TrimPrefix(s, "role:"))
		if !role.Valid() {
			return model.VisibilityScope{}, fmt.Errorf("unknown role %q", role)
		}
		return model.RoleScope(role), nil
	}
	return model.VisibilityScope{}, fmt.Errorf("unknown visibility %q", s)
}
