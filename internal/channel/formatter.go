package channel

import "strings"

const DefaultNamespace = "App.Events"

// EventFormatter maps listener names to wire event names. A leading "." or
// "\" marks a raw name; anything else is qualified with the namespace.
type EventFormatter struct {
	namespace string
}

func NewEventFormatter(namespace string) EventFormatter {
	return EventFormatter{namespace: namespace}
}

func (f EventFormatter) Format(event string) string {
	if strings.HasPrefix(event, ".") || strings.HasPrefix(event, `\`) {
		return event[1:]
	}
	if f.namespace != "" {
		event = f.namespace + "." + event
	}
	return strings.ReplaceAll(event, ".", `\`)
}
