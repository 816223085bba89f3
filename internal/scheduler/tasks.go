// Package scheduler delivers activity reminders through an asynq queue.
// A cron-driven sweep enqueues one task per due reminder and the worker
// publishes ActivityReminderDue when the task runs.
package scheduler

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

const TaskActivityReminder = "activities.reminder"

type ActivityReminderPayload struct {
	ActivityID string    `json:"activityId"`
	TenantID   string    `json:"tenantId"`
	RemindAt   time.Time `json:"remindAt"`
}

// ReminderTaskID deduplicates reminder tasks per activity and reminder time.
// Moving a reminder gets a fresh task; the one left at the old time finds the
// reminder no longer due and exits.
func ReminderTaskID(activityID string, remindAt time.Time) string {
	return "reminder:" + activityID + ":" + strconv.FormatInt(remindAt.Unix(), 10)
}

func NewActivityReminderTask(payload ActivityReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityReminder, data), nil
}

func ParseActivityReminderPayload(task *asynq.Task) (ActivityReminderPayload, error) {
	var payload ActivityReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ActivityReminderPayload{}, err
	}
	return payload, nil
}
