package attendance

import "sort"

// DefaultThreshold is the attendance percentage below which a student is a defaulter.
const DefaultThreshold = 75.0

// StudentStat is one student's attendance over the snapshot.
type StudentStat struct {
	StudentID  string  `json:"student_id"`
	Present    int     `json:"present"`
	Percentage float64 `json:"percentage"`
}

// LectureStat counts events recorded for one lecture name.
type LectureStat struct {
	Lecture  string `json:"lecture"`
	Events   int    `json:"events"`
	Sessions int    `json:"sessions"`
}

// Report is the result of Compute.
type Report struct {
	TotalSessions int           `json:"total_sessions"`
	TotalEvents   int           `json:"total_events"`
	Threshold     float64       `json:"threshold"`
	Students      []StudentStat `json:"students"`
	Defaulters    []StudentStat `json:"defaulters"`
	Lectures      []LectureStat `json:"lectures"`
}

// Compute derives per-student attendance from an event snapshot.
//
// The denominator is the number of distinct calendar dates across all events, so two
// lectures on the same day count as one session. Only students with at least one event
// appear; a student who never attended is not reported as a defaulter.
func Compute(events []Event, threshold float64) Report {
	dates := make(map[string]struct{})
	present := make(map[string]int)
	lectureEvents := make(map[string]int)
	lectureDates := make(map[string]map[string]struct{})

	for _, e := range events {
		day := e.DateKey()
		dates[day] = struct{}{}
		present[e.StudentID]++

		lectureEvents[e.Lecture]++
		if lectureDates[e.Lecture] == nil {
			lectureDates[e.Lecture] = make(map[string]struct{})
		}
		lectureDates[e.Lecture][day] = struct{}{}
	}

	rep := Report{
		TotalSessions: len(dates),
		TotalEvents:   len(events),
		Threshold:     threshold,
		Students:      make([]StudentStat, 0, len(present)),
		Defaulters:    []StudentStat{},
		Lectures:      make([]LectureStat, 0, len(lectureEvents)),
	}

	for id, n := range present {
		pct := 0.0
		if rep.TotalSessions > 0 {
			pct = float64(n) / float64(rep.TotalSessions) * 100
		}
		stat := StudentStat{StudentID: id, Present: n, Percentage: pct}
		rep.Students = append(rep.Students, stat)
		if pct < threshold {
			rep.Defaulters = append(rep.Defaulters, stat)
		}
	}
	for name, n := range lectureEvents {
		rep.Lectures = append(rep.Lectures, LectureStat{Lecture: name, Events: n, Sessions: len(lectureDates[name])})
	}

	sort.Slice(rep.Students, func(i, j int) bool { return rep.Students[i].StudentID < rep.Students[j].StudentID })
	sort.Slice(rep.Defaulters, func(i, j int) bool { return rep.Defaulters[i].StudentID < rep.Defaulters[j].StudentID })
	sort.Slice(rep.Lectures, func(i, j int) bool { return rep.Lectures[i].Lecture < rep.Lectures[j].Lecture })
	return rep
}
