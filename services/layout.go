package services

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"manual-qa-backend/models"

	"github.com/ledongthuc/pdf"
)

// LayoutParser extracts per-page text runs with font sizes. A run is one
// visual line: fragments that share a baseline, joined left to right.
// Font size is what section detection keys on, so plain-text extraction
// is not enough here.
type LayoutParser struct{}

func NewLayoutParser() *LayoutParser {
	return &LayoutParser{}
}

// Fragments whose baselines differ by less than this are one line.
const lineTolerance = 2.0

// Parse reads the PDF and returns runs grouped per page, in reading
// order. Pages the library cannot decode are skipped with a warning; the
// whole document failing yields ErrParse.
func (p *LayoutParser) Parse(ctx context.Context, path string) ([][]models.PageRun, int, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat PDF file: %w", err)
	}
	if stat.Size() > 200<<20 { // 200MB safety cap
		return nil, 0, fmt.Errorf("%w: pdf too large for in-memory extraction", models.ErrParse)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	defer f.Close()

	pages := reader.NumPage()
	if pages == 0 {
		return nil, 0, fmt.Errorf("%w: document has no pages", models.ErrParse)
	}

	runsByPage := make([][]models.PageRun, 0, pages)
	extracted := 0
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			runsByPage = append(runsByPage, nil)
			continue
		}

		runs := pageRuns(i, page)
		if len(runs) > 0 {
			extracted++
		}
		runsByPage = append(runsByPage, runs)
	}

	if extracted == 0 {
		return nil, 0, fmt.Errorf("%w: no text extracted from any page", models.ErrParse)
	}
	return runsByPage, pages, nil
}

type fragment struct {
	x, y float64
	size float64
	text string
}

func pageRuns(pageNum int, page pdf.Page) []models.PageRun {
	content := page.Content()
	if len(content.Text) == 0 {
		return nil
	}

	frags := make([]fragment, 0, len(content.Text))
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		frags = append(frags, fragment{x: t.X, y: t.Y, size: t.FontSize, text: t.S})
	}
	if len(frags) == 0 {
		return nil
	}

	// Top of page first (PDF Y grows upward), then left to right.
	sort.SliceStable(frags, func(a, b int) bool {
		if math.Abs(frags[a].y-frags[b].y) > lineTolerance {
			return frags[a].y > frags[b].y
		}
		return frags[a].x < frags[b].x
	})

	var runs []models.PageRun
	var line strings.Builder
	lineSize := 0.0
	lineY := math.Inf(1)

	flush := func() {
		text := strings.TrimSpace(line.String())
		if text != "" {
			runs = append(runs, models.PageRun{Page: pageNum, Text: text, FontSize: lineSize})
		}
		line.Reset()
		lineSize = 0
	}

	for _, fr := range frags {
		if line.Len() > 0 && math.Abs(fr.y-lineY) > lineTolerance {
			flush()
		}
		if line.Len() > 0 && !strings.HasSuffix(line.String(), " ") && !strings.HasPrefix(fr.text, " ") {
			line.WriteByte(' ')
		}
		line.WriteString(fr.text)
		if fr.size > lineSize {
			lineSize = fr.size
		}
		lineY = fr.y
	}
	flush()

	return runs
}
