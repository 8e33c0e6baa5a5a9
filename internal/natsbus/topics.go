package natsbus

import "fmt"

// Topic patterns for report run events.

func TopicEventsReport(runID string) string {
	return fmt.Sprintf("events.report.%s", runID)
}

const (
	TopicEventsAll              = "events.>"
	TopicEventsReports          = "events.report.*"
	TopicEventsScheduleExecuted = "events.schedule.executed"
)
