// Package automation implements the trigger matching and execution
// engine for single-shot automation rules.
package automation

import (
	"log/slog"
	"sort"

	"github.com/casaflow/casaflow/pkg/models"
)

// Matcher selects the automations an inbound domain event activates.
type Matcher struct {
	logger *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger.With("module", "matcher")}
}

// Match returns the active automations whose trigger type and trigger
// rules fit the event, ordered by priority ascending with created_at as
// the tie-breaker. Automations with malformed rules are skipped, never
// treated as matching.
func (m *Matcher) Match(event models.DomainEvent, automations []*models.Automation) []*models.Automation {
	matched := make([]*models.Automation, 0)

	for _, automation := range automations {
		if !automation.IsActive || automation.TriggerType != event.Type {
			continue
		}

		ok, valid := rulesMatch(automation.TriggerType, automation.ID, automation.TriggerRules, event)
		if !valid {
			m.logger.Warn("Skipping automation with malformed trigger rules",
				"automation_id", automation.ID,
				"trigger_type", automation.TriggerType)

			continue
		}

		if ok {
			matched = append(matched, automation)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}

		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched
}

// MatchesWorkflow reports whether the event should enroll entities into
// the workflow. Workflows carry the same trigger rules as automations
// and are gated the same way; malformed rules log and never match.
func (m *Matcher) MatchesWorkflow(event models.DomainEvent, workflow *models.Workflow) bool {
	if !workflow.IsActive || workflow.TriggerType != event.Type {
		return false
	}

	ok, valid := rulesMatch(workflow.TriggerType, workflow.ID, workflow.TriggerRules, event)
	if !valid {
		m.logger.Warn("Skipping workflow with malformed trigger rules",
			"workflow_id", workflow.ID,
			"trigger_type", workflow.TriggerType)

		return false
	}

	return ok
}

// rulesMatch checks the trigger-type specific rules. The second return
// value is false when the stored rules cannot be interpreted.
func rulesMatch(triggerType models.TriggerType, ownerID string, rules map[string]any, event models.DomainEvent) (bool, bool) {
	switch triggerType {
	case models.TriggerDealStageChange:
		return matchRuleValue(rules, event, "target_stage", "new_stage")
	case models.TriggerClientStatusChange:
		return matchRuleValue(rules, event, "target_status", "new_status")
	case models.TriggerScoreThreshold:
		return matchThreshold(rules, event)
	case models.TriggerTimeBased:
		// Scheduler ticks name the automation whose schedule fired.
		if target, ok := event.PayloadString("automation_id"); ok {
			return target == ownerID, true
		}

		return true, true
	case models.TriggerTaskCompleted, models.TriggerManual:
		// No trigger rules narrow these beyond the type itself.
		return true, true
	default:
		return false, false
	}
}

// matchRuleValue compares a string rule against the event payload. An
// unset rule means fire on any value.
func matchRuleValue(rules map[string]any, event models.DomainEvent, ruleKey, payloadKey string) (bool, bool) {
	if rules == nil {
		return true, true
	}

	raw, exists := rules[ruleKey]
	if !exists || raw == nil {
		return true, true
	}

	want, ok := raw.(string)
	if !ok {
		return false, false
	}

	got, _ := event.PayloadString(payloadKey)

	return got == want, true
}

// matchThreshold fires when the new score crosses the configured
// threshold from below.
func matchThreshold(rules map[string]any, event models.DomainEvent) (bool, bool) {
	threshold, ok := ruleNumber(rules, "threshold")
	if !ok {
		if rules == nil {
			return true, true
		}

		if _, exists := rules["threshold"]; !exists {
			return true, true
		}

		return false, false
	}

	newScore, ok := event.PayloadNumber("new_score")
	if !ok {
		return false, true
	}

	previousScore, hasPrevious := event.PayloadNumber("previous_score")
	if hasPrevious && previousScore >= threshold {
		// Already above the line, no crossing happened.
		return false, true
	}

	return newScore >= threshold, true
}

func ruleNumber(rules map[string]any, key string) (float64, bool) {
	if rules == nil {
		return 0, false
	}

	switch v := rules[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
