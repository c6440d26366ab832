package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// JobConfig is the immutable translation request captured at task creation.
type JobConfig struct {
	FileID      string   `json:"file_id"`
	LangIn      string   `json:"lang_in"`
	LangOut     string   `json:"lang_out"`
	Model       string   `json:"model"`
	APIKey      string   `json:"-"`
	BaseURL     string   `json:"base_url,omitempty"`
	Pages       string   `json:"pages,omitempty"`
	QPS         int      `json:"qps"`
	NoDual      bool     `json:"no_dual,omitempty"`
	NoMono      bool     `json:"no_mono,omitempty"`
	GlossaryIDs []string `json:"glossary_ids,omitempty"`
}

// Validate checks the configuration invariants. All violations wrap
// ErrInvalidConfig so callers can classify with errors.Is.
func (c JobConfig) Validate() error {
	if strings.TrimSpace(c.FileID) == "" {
		return fmt.Errorf("%w: file_id is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.LangIn) == "" || strings.TrimSpace(c.LangOut) == "" {
		return fmt.Errorf("%w: lang_in and lang_out are required", ErrInvalidConfig)
	}
	if _, err := language.Parse(c.LangIn); err != nil {
		return fmt.Errorf("%w: lang_in %q is not a valid language tag", ErrInvalidConfig, c.LangIn)
	}
	if _, err := language.Parse(c.LangOut); err != nil {
		return fmt.Errorf("%w: lang_out %q is not a valid language tag", ErrInvalidConfig, c.LangOut)
	}
	if strings.EqualFold(c.LangIn, c.LangOut) {
		return fmt.Errorf("%w: source and target language must differ", ErrInvalidConfig)
	}
	if c.QPS <= 0 {
		return fmt.Errorf("%w: qps must be positive", ErrInvalidConfig)
	}
	if c.NoDual && c.NoMono {
		return fmt.Errorf("%w: at least one output mode must be enabled", ErrInvalidConfig)
	}
	if c.Pages != "" {
		if _, err := ParsePageRange(c.Pages); err != nil {
			return err
		}
	}
	return nil
}

// PageSet returns the parsed page filter, or nil when all pages are in
// scope. Only valid after Validate has passed.
func (c JobConfig) PageSet() []int {
	if c.Pages == "" {
		return nil
	}
	pages, err := ParsePageRange(c.Pages)
	if err != nil {
		return nil
	}
	return pages
}

// ParsePageRange parses a "1,3,5-7" style filter into a sorted set of
// unique 1-based page indices.
func ParsePageRange(spec string) ([]int, error) {
	seen := make(map[int]struct{})
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty page range segment", ErrInvalidConfig)
		}
		lo, hi, err := parsePageSegment(part)
		if err != nil {
			return nil, err
		}
		for p := lo; p <= hi; p++ {
			seen[p] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: page range is empty", ErrInvalidConfig)
	}
	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}

func parsePageSegment(part string) (int, int, error) {
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		start, err := parsePageNumber(lo)
		if err != nil {
			return 0, 0, err
		}
		end, err := parsePageNumber(hi)
		if err != nil {
			return 0, 0, err
		}
		if end < start {
			return 0, 0, fmt.Errorf("%w: page range %q is reversed", ErrInvalidConfig, part)
		}
		return start, end, nil
	}
	page, err := parsePageNumber(part)
	if err != nil {
		return 0, 0, err
	}
	return page, page, nil
}

func parsePageNumber(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: invalid page number %q", ErrInvalidConfig, raw)
	}
	return n, nil
}
