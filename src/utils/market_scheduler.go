package utils

import (
	"sync"
	"time"

	"market-broker/src/logger"
)

// MarketScheduler tracks the calendars of a set of subjects.
type MarketScheduler struct {
	calendars map[string]*TradingCalendar // keyed by MIC
	logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(subjects []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{logger: l}
	ms.UpdateSubjects(subjects)
	return ms
}

// -----------------------------------------------------------------------------

// UpdateSubjects replaces the tracked calendars with those of subjects
func (ms *MarketScheduler) UpdateSubjects(subjects []string) {
	calendars := make(map[string]*TradingCalendar)
	for _, s := range subjects {
		mic := MICForSubject(s)
		if _, ok := calendars[mic]; !ok {
			calendars[mic] = GetCalendar(mic)
		}
	}

	ms.mu.Lock()
	ms.calendars = calendars
	ms.mu.Unlock()

	ms.logger.Info("MarketScheduler: mapped %d subjects to %d calendars", len(subjects), len(calendars))
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if any tracked market is open at now
func (ms *MarketScheduler) AnyMarketOpen(now time.Time) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, cal := range ms.calendars {
		if cal.IsOpen(now) {
			return true
		}
	}
	return false
}
