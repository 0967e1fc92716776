package services

import (
	"regexp"
	"sort"
	"strings"

	"manual-qa-backend/models"

	"github.com/google/uuid"
)

// Matches hierarchical numbering like "3", "3.2", "10.4.1" followed by a
// title fragment.
var numberedHeadingRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]?\s+\S`)

// SectionBuilder groups page runs into sections. A new section starts at
// the first heading-like run of a page, so sections always cover whole
// pages and every page belongs to exactly one section.
type SectionBuilder struct {
	headingSizeRatio float64
	maxHeadingLength int
}

func NewSectionBuilder(headingSizeRatio float64, maxHeadingLength int) *SectionBuilder {
	return &SectionBuilder{
		headingSizeRatio: headingSizeRatio,
		maxHeadingLength: maxHeadingLength,
	}
}

// Build turns per-page runs into ordered, contiguous sections. Pages
// before the first heading land in an implicit "Untitled" front-matter
// section.
func (sb *SectionBuilder) Build(runsByPage [][]models.PageRun) []models.Section {
	if len(runsByPage) == 0 {
		return nil
	}

	bodySize := medianFontSize(runsByPage)

	type openSection struct {
		title     string
		level     int
		pageStart int
		parts     []string
	}

	var sections []models.Section
	var cur *openSection

	closeAt := func(pageEnd int) {
		if cur == nil {
			return
		}
		text := strings.TrimSpace(strings.Join(cur.parts, "\n"))
		sections = append(sections, models.Section{
			ID:         uuid.NewString(),
			Title:      cur.title,
			Level:      cur.level,
			PageStart:  cur.pageStart,
			PageEnd:    pageEnd,
			Text:       text,
			TokenCount: roughTokenCount(text),
		})
		cur = nil
	}

	for pageIdx, runs := range runsByPage {
		page := pageIdx + 1

		headingAt := -1
		for i, run := range runs {
			if sb.isHeading(run, bodySize) {
				headingAt = i
				break
			}
		}

		if headingAt >= 0 {
			closeAt(page - 1)
			head := runs[headingAt]
			cur = &openSection{
				title:     head.Text,
				level:     sb.headingLevel(head, bodySize),
				pageStart: page,
			}
		} else if cur == nil {
			// Front matter before the first heading.
			cur = &openSection{title: "Untitled", level: 1, pageStart: page}
		}

		for i, run := range runs {
			if i == headingAt {
				continue
			}
			cur.parts = append(cur.parts, run.Text)
		}
	}
	closeAt(len(runsByPage))

	return sections
}

func (sb *SectionBuilder) isHeading(run models.PageRun, bodySize float64) bool {
	text := strings.TrimSpace(run.Text)
	if text == "" || len(text) > sb.maxHeadingLength {
		return false
	}
	if bodySize > 0 && run.FontSize >= bodySize*sb.headingSizeRatio {
		return true
	}
	return numberedHeadingRe.MatchString(text)
}

// headingLevel derives the outline level: numbering depth wins, otherwise
// the font-size magnitude splits top-level headings from the rest.
func (sb *SectionBuilder) headingLevel(run models.PageRun, bodySize float64) int {
	if m := numberedHeadingRe.FindStringSubmatch(strings.TrimSpace(run.Text)); m != nil {
		return strings.Count(m[1], ".") + 1
	}
	if bodySize > 0 && run.FontSize >= bodySize*sb.headingSizeRatio*1.25 {
		return 1
	}
	return 2
}

func medianFontSize(runsByPage [][]models.PageRun) float64 {
	var sizes []float64
	for _, runs := range runsByPage {
		for _, run := range runs {
			if run.FontSize > 0 {
				sizes = append(sizes, run.FontSize)
			}
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	sort.Float64s(sizes)
	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		return sizes[mid]
	}
	return (sizes[mid-1] + sizes[mid]) / 2
}
