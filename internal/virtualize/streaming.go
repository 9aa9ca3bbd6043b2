package virtualize

import (
	"regexp"

	"github.com/daviddao/threadview/internal/dom"
)

// StreamingState is the result of the last detection.
type StreamingState struct {
	IsStreaming bool
	// ElementID is the virtual id of the element receiving output, if any.
	ElementID string
}

// Detection is what a StreamingDetector reports for one pass.
type Detection struct {
	Streaming bool
	// Target is the element believed to be receiving output.
	Target *dom.Node
	// Signal names the heuristic that matched, for logging.
	Signal string
}

// StreamingDetector decides whether a response is being generated. tracked
// holds the message-like nodes in document order.
type StreamingDetector interface {
	Detect(doc *dom.Document, tracked []*dom.Node) Detection
}

// DetectorFunc adapts a function to StreamingDetector.
type DetectorFunc func(doc *dom.Document, tracked []*dom.Node) Detection

func (f DetectorFunc) Detect(doc *dom.Document, tracked []*dom.Node) Detection {
	return f(doc, tracked)
}

var (
	stopWord       = regexp.MustCompile(`(?i)stop`)
	generatingWord = regexp.MustCompile(`(?i)generat|streaming`)
)

// HeuristicDetector sniffs page signals, first match wins:
//  1. a visible node matching StopControl
//  2. a visible button whose text mentions both "stop" and generating/streaming
//  3. a Marker node at or inside the last tracked element
type HeuristicDetector struct {
	StopControl dom.Selector
	Marker      dom.Selector
}

// NewHeuristicDetector parses the selectors from cfg.
func NewHeuristicDetector(cfg Config) (*HeuristicDetector, error) {
	cfg.defaults()
	stop, err := dom.ParseSelector(cfg.StopSelector)
	if err != nil {
		return nil, err
	}
	marker, err := dom.ParseSelector(cfg.MarkerSelector)
	if err != nil {
		return nil, err
	}
	return &HeuristicDetector{StopControl: stop, Marker: marker}, nil
}

var buttonSelector = dom.MustParseSelector("button")

func (h *HeuristicDetector) Detect(doc *dom.Document, tracked []*dom.Node) Detection {
	var last *dom.Node
	if len(tracked) > 0 {
		last = tracked[len(tracked)-1]
	}
	signal := h.signal(doc, last)
	if signal == "" {
		return Detection{}
	}
	return Detection{Streaming: true, Target: last, Signal: signal}
}

func (h *HeuristicDetector) signal(doc *dom.Document, last *dom.Node) string {
	for _, n := range doc.QuerySelectorAll(nil, h.StopControl) {
		if n.Visible() {
			return "stop-control"
		}
	}
	for _, n := range doc.QuerySelectorAll(nil, buttonSelector) {
		if !n.Visible() {
			continue
		}
		text := n.TextContent()
		if label, ok := n.Attr("aria-label"); ok {
			text += " " + label
		}
		if stopWord.MatchString(text) && generatingWord.MatchString(text) {
			return "stop-button-text"
		}
	}
	if last != nil && (h.Marker.Match(last) || doc.QuerySelector(last, h.Marker) != nil) {
		return "streaming-marker"
	}
	return ""
}
