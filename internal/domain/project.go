package domain

// Project is a for-sale software project listed in the marketplace.
// SourceCode, DemoURL and Documentation are only meaningful to users who
// purchased the project.
type Project struct {
	ID            string   `json:"_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Price         Price    `json:"price"`
	Category      string   `json:"category"`
	Technologies  []string `json:"technologies"`
	Images        []string `json:"images"`
	IsActive      bool     `json:"isActive"`
	IsFeatured    bool     `json:"isFeatured"`
	SourceCode    string   `json:"sourceCode,omitempty"`
	DemoURL       string   `json:"demoUrl,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
}

// Gated returns a copy with the purchase-gated links removed.
func (p Project) Gated() Project {
	p.SourceCode = ""
	p.DemoURL = ""
	p.Documentation = ""
	return p
}

// ProjectFilter narrows a project listing.
type ProjectFilter struct {
	Category string
	Search   string
	Featured bool
}
