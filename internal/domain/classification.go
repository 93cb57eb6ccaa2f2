package domain

// Category is the main reason the customer called.
type Category string

// Call categories. The string values are the wire format expected by the
// classification prompt and stored verbatim.
const (
	CategoryComplaint      Category = "reclamo"
	CategoryTechnical      Category = "problema_tecnico"
	CategoryCommercial     Category = "soporte_comercial"
	CategoryAdministrative Category = "solicitud_administrativa"
	CategoryOther          Category = "otro"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryComplaint,
	CategoryTechnical,
	CategoryCommercial,
	CategoryAdministrative,
	CategoryOther,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Classification is the outcome of analyzing one transcript: either a
// category plus extracted topic and keywords, or a reason why the model
// produced nothing usable. There is no "classified as other by default"
// state; an invalid model answer stays unclassified.
type Classification struct {
	category Category
	topic    string
	keywords []string
	reason   string
	ok       bool
}

// Classified creates a successful classification.
func Classified(category Category, topic string, keywords []string) Classification {
	return Classification{category: category, topic: topic, keywords: keywords, ok: true}
}

// Unclassified creates a failed classification with a human-readable reason.
func Unclassified(reason string) Classification {
	return Classification{reason: reason}
}

// Classified reports whether a valid category was assigned.
func (c Classification) Classified() bool { return c.ok }

// Category returns the assigned category. Only meaningful when Classified.
func (c Classification) Category() Category { return c.category }

// MainTopic returns the extracted 3-5 word topic phrase.
func (c Classification) MainTopic() string { return c.topic }

// Keywords returns the extracted keyword list.
func (c Classification) Keywords() []string { return c.keywords }

// Reason explains why classification failed. Empty when Classified.
func (c Classification) Reason() string { return c.reason }
