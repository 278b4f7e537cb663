package reminder

import (
	"strings"
	"unicode/utf8"
)

// MaxCustomActionNameLength is measured in runes.
const MaxCustomActionNameLength = 32

// Action is the pet-care task a reminder is about.
type Action string

const (
	ActionFeed            Action = "feed"
	ActionFreshWater      Action = "fresh_water"
	ActionPotty           Action = "potty"
	ActionWalk            Action = "walk"
	ActionBrush           Action = "brush"
	ActionBathe           Action = "bathe"
	ActionMedicine        Action = "medicine"
	ActionSleep           Action = "sleep"
	ActionTrainingSession Action = "training_session"
	ActionDoctor          Action = "doctor"
	ActionCustom          Action = "custom"
)

var actionNames = map[Action]string{
	ActionFeed:            "Feed",
	ActionFreshWater:      "Fresh Water",
	ActionPotty:           "Potty",
	ActionWalk:            "Walk",
	ActionBrush:           "Brush",
	ActionBathe:           "Bathe",
	ActionMedicine:        "Medicine",
	ActionSleep:           "Sleep",
	ActionTrainingSession: "Training Session",
	ActionDoctor:          "Doctor Visit",
	ActionCustom:          "Custom",
}

func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// DisplayName returns the user-facing label. Custom actions with a name use it.
func (a Action) DisplayName(customName string) string {
	if a == ActionCustom {
		if n := strings.TrimSpace(customName); n != "" {
			return n
		}
	}
	if n, ok := actionNames[a]; ok {
		return n
	}
	return string(a)
}

func validateAction(a Action, customName string) error {
	if !a.Valid() {
		return invalid("action", a, "unknown action")
	}
	if n := utf8.RuneCountInString(customName); n > MaxCustomActionNameLength {
		return invalid("custom_action_name", n, "longer than 32 characters")
	}
	return nil
}
