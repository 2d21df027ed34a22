package labschedule

import (
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	domerrors "github.com/garyellow/campuskit/internal/errors"
)

// Grid dimensions of one week.
const (
	Periods      = 6
	Weekdays     = 7
	CellsPerWeek = Periods * Weekdays
)

// Detail line labels, matched as prefixes.
var detailLabels = []struct {
	label string
	set   func(*Item, string)
}{
	{"课程编号", func(it *Item, v string) { it.CourseCode = v }},
	{"班级", func(it *Item, v string) { it.ClassName = v }},
	{"地址", func(it *Item, v string) { it.Location = v }},
	{"节次", func(it *Item, v string) { it.Section = v }},
}

// ParseCourseTable decodes the lab course table into week number -> 42 cells
// laid out as period*7 + weekday (Monday = 0). Empty cells are nil.
func ParseCourseTable(r io.Reader) (map[int][]*Item, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, domerrors.NewHTMLParsingError("failed to read document", err)
	}
	return parseDocument(doc)
}

func parseDocument(doc *goquery.Document) (map[int][]*Item, error) {
	tbody := doc.Find("table > tbody").First()
	if tbody.Length() == 0 {
		return nil, domerrors.NewHTMLParsingError("course table not found", nil)
	}

	rows := tbody.ChildrenFiltered("tr")
	if rows.Length()%Periods != 0 {
		return nil, domerrors.NewHTMLParsingError(
			"course table has "+strconv.Itoa(rows.Length())+" rows, want a multiple of "+strconv.Itoa(Periods), nil)
	}

	weeks := make(map[int][]*Item, rows.Length()/Periods)
	for start := 0; start < rows.Length(); start += Periods {
		week, cells, err := parseBlock(rows.Slice(start, start+Periods))
		if err != nil {
			return nil, err
		}
		weeks[week] = cells
	}
	return weeks, nil
}

// parseBlock reads one week: row 0 carries the week cell and a period cell,
// rows 1-5 only a period cell.
func parseBlock(rows *goquery.Selection) (int, []*Item, error) {
	first := rows.First().ChildrenFiltered("td, th")
	weekText := strings.TrimSpace(first.First().Text())
	week, err := strconv.Atoi(weekText)
	if err != nil {
		return 0, nil, domerrors.NewHTMLParsingError("week number "+strconv.Quote(weekText)+" is not numeric", err)
	}

	cells := make([]*Item, CellsPerWeek)
	for period := range Periods {
		offset := 1
		if period == 0 {
			offset = 2
		}
		tds := rows.Eq(period).ChildrenFiltered("td, th")
		if tds.Length() < offset+Weekdays {
			return 0, nil, domerrors.NewHTMLParsingError(
				"week "+strconv.Itoa(week)+" period "+strconv.Itoa(period+1)+" has too few cells", nil)
		}
		for day := range Weekdays {
			cells[period*Weekdays+day] = parseCell(tds.Eq(offset + day))
		}
	}
	return week, cells, nil
}

func parseCell(cell *goquery.Selection) *Item {
	tooltip := cell.Find(".tooltip").First()
	if tooltip.Length() == 0 {
		return nil
	}

	item := &Item{CourseName: strings.TrimSpace(tooltip.Find(".title").First().Text())}
	if item.CourseName == "" {
		item.CourseName = strings.TrimSpace(tooltip.AttrOr("title", ""))
	}

	lines := tooltip.Find(".content p")
	if lines.Length() == 0 {
		lines = tooltip.Find(".content li")
	}
	lines.Each(func(_ int, line *goquery.Selection) {
		text := strings.TrimSpace(line.Text())
		for _, d := range detailLabels {
			if value, ok := cutLabel(text, d.label); ok {
				d.set(item, value)
				break
			}
		}
	})
	return item
}

// cutLabel strips "label：" or "label:" from the start of text.
func cutLabel(text, label string) (string, bool) {
	rest, ok := strings.CutPrefix(text, label)
	if !ok {
		return "", false
	}
	for _, colon := range []string{"：", ":"} {
		if value, ok := strings.CutPrefix(rest, colon); ok {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}
