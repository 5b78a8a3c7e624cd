package model

// EmbedColor is the side bar color of every notification.
const EmbedColor = 0x800000

// Embed is one bounded notification unit in Discord's embed shape.
type Embed struct {
	Title       string  `json:"title"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields"`
	Description string  `json:"description"`
	Footer      Footer  `json:"footer"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Footer struct {
	Text string `json:"text"`
}

// Outcome is the delivery result of a single embed.
type Outcome struct {
	Part int
	Err  error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// DeliveryResult collects the outcomes of one message's embed sequence.
type DeliveryResult struct {
	Destination string
	Outcomes    []Outcome
}

// Delivered reports whether every embed in the sequence was acknowledged.
// An empty sequence is not a delivery.
func (r DeliveryResult) Delivered() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if !o.OK() {
			return false
		}
	}
	return true
}

// Failed returns the number of embeds that were not delivered.
func (r DeliveryResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}
