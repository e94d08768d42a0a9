package services

import "log"

// Notifier delivers fire-and-forget user-visible messages. The host
// application surfaces them as transient notices; nothing ever reads back.
type Notifier interface {
	Notify(message string)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(message string) {
	log.Printf("NOTICE: %s", message)
}
