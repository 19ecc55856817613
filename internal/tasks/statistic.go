package tasks

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Statistic tracks timing and outcome of a prepare-all run. It is safe
// for concurrent use.
type Statistic struct {
	mu  sync.Mutex
	now func() time.Time

	start, end       time.Time
	active, finished bool

	count      int
	failed     int
	min, max   time.Duration
	buildTimes []time.Duration
	failedSum  time.Duration
}

// NewStatistic creates a statistic that has not been started
func NewStatistic() *Statistic {
	return &Statistic{now: time.Now}
}

// Start begins time measurement. It has no effect once started.
func (s *Statistic) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active && !s.finished {
		s.start = s.now()
		s.active = true
	}
}

// Stop ends time measurement
func (s *Statistic) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active && !s.finished {
		s.end = s.now()
		s.active = false
		s.finished = true
	}
}

// AddCompletedTask records one finished build. Only successful builds
// count towards min, max and average.
func (s *Statistic) AddCompletedTask(elapsed time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++

	if failed {
		s.failed++
		s.failedSum += elapsed
		return
	}

	if len(s.buildTimes) == 0 || elapsed < s.min {
		s.min = elapsed
	}
	if elapsed > s.max {
		s.max = elapsed
	}
	s.buildTimes = append(s.buildTimes, elapsed)
}

// Count returns the number of completed builds
func (s *Statistic) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Failed returns the number of failed builds
func (s *Statistic) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Average returns the mean duration of successful builds
func (s *Statistic) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.average()
}

func (s *Statistic) average() time.Duration {
	if len(s.buildTimes) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range s.buildTimes {
		sum += d
	}

	return sum / time.Duration(len(s.buildTimes))
}

func (s *Statistic) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active && !s.finished {
		return "Statistic not initialized yet"
	}

	var b strings.Builder
	b.WriteString("################STATISTICS################\n")
	b.WriteString("task\n")

	if s.finished {
		fmt.Fprintf(&b, "    started at:   %s\n", s.start.Format(timeLayout))
		fmt.Fprintf(&b, "    finished at:  %s\n", s.end.Format(timeLayout))
		fmt.Fprintf(&b, "    elapsed time: %s\n", formatDuration(s.end.Sub(s.start)))
	} else {
		fmt.Fprintf(&b, "    running since: %s\n", s.start.Format(timeLayout))
		fmt.Fprintf(&b, "    elapsed time:  %s\n", formatDuration(s.now().Sub(s.start)))
	}

	b.WriteString("build times\n")
	fmt.Fprintf(&b, "    min build time:     %s\n", formatDuration(s.min))
	fmt.Fprintf(&b, "    max build time:     %s\n", formatDuration(s.max))
	fmt.Fprintf(&b, "    average build time: %s\n", formatDuration(s.average()))
	fmt.Fprintf(&b, "    sum failed builds:  %s (summed over all workers)\n", formatDuration(s.failedSum))
	b.WriteString("build count\n")
	fmt.Fprintf(&b, "    total builds:  %d\n", s.count)
	fmt.Fprintf(&b, "    failed builds: %d\n", s.failed)
	b.WriteString("##########################################\n")

	return b.String()
}

// formatDuration renders d as hours:minutes:seconds
func formatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}
