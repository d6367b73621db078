package lark

import "encoding/json"

// Card templates. Lark interactive cards are JSON documents; the bridge
// only needs two states: an in-progress card that grows as partials arrive
// and a completed card with the final text.

type cardDoc struct {
	Config   cardConfig    `json:"config"`
	Header   *cardHeader   `json:"header,omitempty"`
	Elements []cardElement `json:"elements"`
}

type cardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type cardHeader struct {
	Title    cardText `json:"title"`
	Template string   `json:"template"`
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardElement struct {
	Tag  string   `json:"tag"`
	Text cardText `json:"text"`
}

// progressCard renders the in-progress state: accumulated text under a
// "thinking" header.
func progressCard(text string) string {
	return renderCard(text, "Working…", "blue")
}

// completeCard renders the final state.
func completeCard(text string) string {
	return renderCard(text, "", "")
}

func renderCard(text, title, template string) string {
	doc := cardDoc{
		Config: cardConfig{WideScreenMode: true},
		Elements: []cardElement{
			{Tag: "div", Text: cardText{Tag: "lark_md", Content: text}},
		},
	}
	if title != "" {
		doc.Header = &cardHeader{
			Title:    cardText{Tag: "plain_text", Content: title},
			Template: template,
		}
	}
	// Marshal cannot fail on this shape.
	b, _ := json.Marshal(doc)
	return string(b)
}
