package services

import "time"

// SetBackoff replaces the delay between send attempts.
func (s *NotificationService) SetBackoff(f func(attempt int) time.Duration) {
	s.backoff = f
}
