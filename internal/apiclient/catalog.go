package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/akeditz/storefront/internal/domain"
)

func (c *Client) ListProjects(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Featured {
		q.Set("featured", "true")
	}

	var out []domain.Project
	if err := c.get(ctx, "/projects", q, "projects", &out); err != nil {
		return nil, err
	}
	for i := range out {
		c.normalizeProject(&out[i])
	}
	return out, nil
}

// GetProject returns domain.ErrProjectNotFound when the backend has no such
// project.
func (c *Client) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	var out domain.Project
	if err := c.get(ctx, "/projects/"+url.PathEscape(id), nil, "project", &out); err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}
	if out.ID == "" {
		return nil, domain.ErrProjectNotFound
	}
	c.normalizeProject(&out)
	return &out, nil
}

func (c *Client) normalizeProject(p *domain.Project) {
	for i, img := range p.Images {
		p.Images[i] = c.resolveAsset(img)
	}
	if p.Technologies == nil {
		p.Technologies = []string{}
	}
}

// ListBlogs returns published articles, optionally limited to a category.
func (c *Client) ListBlogs(ctx context.Context, category string) ([]domain.Blog, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}

	var out []domain.Blog
	if err := c.get(ctx, "/blogs", q, "blogs", &out); err != nil {
		return nil, err
	}

	published := out[:0]
	for _, b := range out {
		if b.IsPublished {
			published = append(published, b)
		}
	}
	return published, nil
}

func (c *Client) GetBlog(ctx context.Context, id string) (*domain.Blog, error) {
	var out domain.Blog
	if err := c.get(ctx, "/blogs/"+url.PathEscape(id), nil, "blog", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Subscribe(ctx context.Context, email, source string) error {
	if source == "" {
		source = "website"
	}
	body := map[string]string{"email": email, "source": source}
	return c.post(ctx, "/newsletter/subscribe", body, "", nil)
}
