package focus

// Outbound broadcast actions delivered to the tab surfaces of a domain.
const (
	ActionShowIntentionPrompt    = "showIntentionPrompt"
	ActionInitializeWidget       = "initializeWidget"
	ActionIntentionConfirmed     = "intentionConfirmed"
	ActionUpdateTimer            = "updateTimer"
	ActionShowReminder           = "showReminder"
	ActionTimerPaused            = "timerPaused"
	ActionTimerResumed           = "timerResumed"
	ActionTimerExtended          = "timerExtended"
	ActionShowExtendConfirmation = "showExtendConfirmation"
)

type ShowIntentionPromptEvent struct {
	Action  string   `json:"action"`
	Domain  string   `json:"domain"`
	Reasons []string `json:"reasons"`
}

func newShowIntentionPrompt(domain string, reasons []string) ShowIntentionPromptEvent {
	return ShowIntentionPromptEvent{Action: ActionShowIntentionPrompt, Domain: domain, Reasons: reasons}
}

type InitializeWidgetEvent struct {
	Action string   `json:"action"`
	State  Snapshot `json:"state"`
}

func newInitializeWidget(state Snapshot) InitializeWidgetEvent {
	return InitializeWidgetEvent{Action: ActionInitializeWidget, State: state}
}

type IntentionConfirmedEvent struct {
	Action       string `json:"action"`
	Intention    string `json:"intention"`
	ReminderTime int    `json:"reminderTime"`
}

func newIntentionConfirmed(intention string, reminderTime int) IntentionConfirmedEvent {
	return IntentionConfirmedEvent{Action: ActionIntentionConfirmed, Intention: intention, ReminderTime: reminderTime}
}

type UpdateTimerEvent struct {
	Action       string `json:"action"`
	TimeSpent    int    `json:"timeSpent"`
	ReminderTime int    `json:"reminderTime"`
	IsTimeUp     bool   `json:"isTimeUp"`
}

func newUpdateTimer(timeSpent, reminderTime int, isTimeUp bool) UpdateTimerEvent {
	return UpdateTimerEvent{Action: ActionUpdateTimer, TimeSpent: timeSpent, ReminderTime: reminderTime, IsTimeUp: isTimeUp}
}

type ShowReminderEvent struct {
	Action          string `json:"action"`
	TimeSpent       int    `json:"timeSpent"`
	Intention       string `json:"intention"`
	ReminderTime    int    `json:"reminderTime"`
	ShouldPlaySound bool   `json:"shouldPlaySound"`
}

func newShowReminder(timeSpent int, intention string, reminderTime int) ShowReminderEvent {
	return ShowReminderEvent{
		Action:          ActionShowReminder,
		TimeSpent:       timeSpent,
		Intention:       intention,
		ReminderTime:    reminderTime,
		ShouldPlaySound: true,
	}
}

type TimerPausedEvent struct {
	Action string      `json:"action"`
	Reason PauseReason `json:"reason"`
}

func newTimerPaused(reason PauseReason) TimerPausedEvent {
	return TimerPausedEvent{Action: ActionTimerPaused, Reason: reason}
}

type TimerResumedEvent struct {
	Action string `json:"action"`
}

func newTimerResumed() TimerResumedEvent {
	return TimerResumedEvent{Action: ActionTimerResumed}
}

type TimerExtendedEvent struct {
	Action           string `json:"action"`
	NewReminderTime  int    `json:"newReminderTime"`
	ExtensionMinutes int    `json:"extensionMinutes"`
}

func newTimerExtended(newReminderTime, minutes int) TimerExtendedEvent {
	return TimerExtendedEvent{Action: ActionTimerExtended, NewReminderTime: newReminderTime, ExtensionMinutes: minutes}
}

type ShowExtendConfirmationEvent struct {
	Action  string `json:"action"`
	Minutes int    `json:"minutes"`
}

func newShowExtendConfirmation(minutes int) ShowExtendConfirmationEvent {
	return ShowExtendConfirmationEvent{Action: ActionShowExtendConfirmation, Minutes: minutes}
}
