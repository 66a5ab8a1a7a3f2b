package prompt

import (
	"regexp"
	"strings"
	"sync"
)

// Detection represents a detected prompt.
type Detection struct {
	Pattern       Pattern
	MatchedText   string
	ContextBuffer string // Lines before the match
}

// Detector detects prompts in appliance output.
type Detector struct {
	patterns       []Pattern
	customPatterns []Pattern
	mu             sync.RWMutex
}

// NewDetector creates a new prompt detector with default patterns.
func NewDetector() *Detector {
	return &Detector{
		patterns: DefaultPatterns(),
	}
}

// AddPattern adds a custom pattern to the detector.
func (d *Detector) AddPattern(p Pattern) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customPatterns = append(d.customPatterns, p)
}

// AddPatternFromConfig adds a pattern from configuration.
func (d *Detector) AddPatternFromConfig(name, regex, kind string, maskInput bool) error {
	re, err := regexp.Compile(regex)
	if err != nil {
		return err
	}

	k := Kind(kind)
	switch k {
	case KindOperational, KindConfig, KindPager, KindLogin, KindPassword:
	default:
		k = KindUnknown
	}

	d.AddPattern(Pattern{
		Name:      name,
		Regex:     re,
		Kind:      k,
		MaskInput: maskInput,
	})
	return nil
}

// Detect checks if the tail of buffer is a prompt.
// Returns the detection if found, nil otherwise.
func (d *Detector) Detect(buffer string) *Detection {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Custom patterns first (higher priority)
	for _, p := range d.customPatterns {
		if match := matchPattern(buffer, p); match != nil {
			return match
		}
	}
	for _, p := range d.patterns {
		if match := matchPattern(buffer, p); match != nil {
			return match
		}
	}
	return nil
}

// Classify returns the kind of prompt at the end of buffer.
func (d *Detector) Classify(buffer string) Kind {
	if det := d.Detect(buffer); det != nil {
		return det.Pattern.Kind
	}
	return KindUnknown
}

// matchPattern checks a pattern against the last few lines of buffer.
func matchPattern(buffer string, p Pattern) *Detection {
	buffer = strings.ReplaceAll(buffer, "\r\n", "\n")
	lines := strings.Split(buffer, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	recent := strings.Join(lines, "\n")

	loc := p.Regex.FindStringIndex(recent)
	if loc == nil {
		return nil
	}
	return &Detection{
		Pattern:       p,
		MatchedText:   strings.TrimSpace(recent[loc[0]:loc[1]]),
		ContextBuffer: strings.TrimSpace(recent[:loc[0]]),
	}
}

// IsPager returns true if the detection is the pager.
func (det *Detection) IsPager() bool {
	return det.Pattern.Kind == KindPager
}

// NeedsCredentials returns true for login and password challenges.
func (det *Detection) NeedsCredentials() bool {
	return det.Pattern.Kind == KindLogin || det.Pattern.Kind == KindPassword
}
