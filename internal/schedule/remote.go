package schedule

import (
	"context"
	"net/url"
	"strings"
	"time"

	domerrors "github.com/garyellow/campuskit/internal/errors"
)

// Remote fetches schedules from the campus API.
type Remote struct {
	client  JSONClient
	baseURL string
}

// NewRemote creates a schedule remote.
func NewRemote(client JSONClient, apiBaseURL string) *Remote {
	return &Remote{client: client, baseURL: apiBaseURL}
}

type entryDTO struct {
	Title      string `json:"title"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Address    string `json:"address"`
	Remark     string `json:"remark"`
	StartLabel string `json:"startLabel"`
	EndLabel   string `json:"endLabel"`
}

type responseDTO struct {
	Schedule map[string][]entryDTO `json:"schedule"`
}

// Fetch requests q's range and normalizes it into the fixed slot grid.
func (r *Remote) Fetch(ctx context.Context, q Query) ([]*Item, error) {
	if err := ValidateRange(q.Start, q.End); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("startDate", q.Start.Format(dateLayout))
	params.Set("endDate", q.End.Format(dateLayout))

	var resp responseDTO
	if err := r.client.GetJSON(ctx, r.baseURL+"/schedule?"+params.Encode(), q.AccessToken, &resp); err != nil {
		return nil, domerrors.MapError(err)
	}
	return normalize(resp.Schedule, q.Start, q.End), nil
}

// normalize lays out byDay as five fixed slots per day of [start, end].
// Days missing from byDay and slots without a matching start time are nil.
// A nil byDay (the API sends "schedule": null) yields only nils.
func normalize(byDay map[string][]entryDTO, start, end time.Time) []*Item {
	days := Days(start, end)
	items := make([]*Item, len(days)*SlotsPerDay)
	if byDay == nil {
		return items
	}

	for i, day := range days {
		entries, ok := byDay[day.Format(dateLayout)]
		if !ok {
			continue
		}
		for _, e := range entries {
			slot := slotIndex(e.StartTime)
			if slot < 0 {
				continue
			}
			idx := i*SlotsPerDay + slot
			if items[idx] != nil {
				continue
			}
			items[idx] = &Item{
				Title:          e.Title,
				StartDate:      atClock(day, e.StartTime),
				EndDate:        atClock(day, e.EndTime),
				Address:        e.Address,
				Remark:         e.Remark,
				StartDateLabel: e.StartLabel,
				EndDateLabel:   e.EndLabel,
			}
		}
	}
	return items
}

// slotIndex matches the HH:MM prefix of startTime against the fixed slots.
func slotIndex(startTime string) int {
	clock := hhmm(startTime)
	for i, s := range slotStarts {
		if clock == s {
			return i
		}
	}
	return -1
}

// hhmm extracts "HH:MM" from "HH:MM", "HH:MM:SS" or "YYYY-MM-DD HH:MM:SS".
func hhmm(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) == 4 && s[1] == ':' {
		s = "0" + s
	}
	if len(s) < 5 {
		return s
	}
	return s[:5]
}

func atClock(day time.Time, clock string) time.Time {
	t, err := time.Parse("15:04", hhmm(clock))
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
}
