// Package content holds the typed content records stored in the repository,
// the front-matter parser and schema validator that produces them, and the
// path classifier shared with cache invalidation.
package content

import "time"

// ContentType identifies which collection a repository file belongs to.
type ContentType string

const (
	TypePage        ContentType = "page"
	TypeProject     ContentType = "project"
	TypeService     ContentType = "service"
	TypeBlog        ContentType = "blog"
	TypeTestimonial ContentType = "testimonial"
	TypeConfig      ContentType = "config"
	TypeUnknown     ContentType = "unknown"
)

// Collections lists every addressable content type in directory order.
var Collections = []ContentType{TypePage, TypeProject, TypeService, TypeBlog, TypeTestimonial}

// Status is the publication state of a record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Category is the project category enum.
type Category string

const (
	CategoryKitchen    Category = "kitchen"
	CategoryBathroom   Category = "bathroom"
	CategoryAddition   Category = "addition"
	CategoryRenovation Category = "renovation"
	CategoryExterior   Category = "exterior"
	CategoryCommercial Category = "commercial"
)

// Categories lists the valid project categories.
var Categories = []Category{
	CategoryKitchen,
	CategoryBathroom,
	CategoryAddition,
	CategoryRenovation,
	CategoryExterior,
	CategoryCommercial,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// SEOMetadata is the per-record search metadata.
type SEOMetadata struct {
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Keywords    []string `json:"keywords" yaml:"keywords"`
	OGImage     string   `json:"ogImage,omitempty" yaml:"ogImage,omitempty"`
	OGType      string   `json:"ogType,omitempty" yaml:"ogType,omitempty"`
	TwitterCard string   `json:"twitterCard,omitempty" yaml:"twitterCard,omitempty"`
}

// Image is a gallery image.
type Image struct {
	Src     string `json:"src" yaml:"src"`
	Alt     string `json:"alt" yaml:"alt"`
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty"`
	Width   int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height  int    `json:"height,omitempty" yaml:"height,omitempty"`
}

// Base carries the fields shared by every publishable record.
type Base struct {
	ID          string      `json:"id" yaml:"id"`
	Title       string      `json:"title" yaml:"title"`
	Status      Status      `json:"status" yaml:"status"`
	PublishedAt time.Time   `json:"publishedAt" yaml:"publishedAt"`
	UpdatedAt   time.Time   `json:"updatedAt" yaml:"updatedAt"`
	SEO         SEOMetadata `json:"seo" yaml:"seo"`
}

// Published reports whether the record is visible on the site.
func (b Base) Published() bool { return b.Status == StatusPublished }

// Record is implemented by every content variant.
type Record interface {
	Kind() ContentType
	Identifier() string
}

// Page is a standalone site page served at /{slug}.
type Page struct {
	Base    `yaml:",inline"`
	Slug    string `json:"slug" yaml:"slug"`
	Content string `json:"content" yaml:"-"`
}

func (p *Page) Kind() ContentType  { return TypePage }
func (p *Page) Identifier() string { return p.Slug }

// Project is a portfolio entry served at /projects/{id}.
type Project struct {
	Base        `yaml:",inline"`
	Description string    `json:"description" yaml:"description"`
	Content     string    `json:"content,omitempty" yaml:"-"`
	Images      []Image   `json:"images" yaml:"images"`
	Category    Category  `json:"category" yaml:"category"`
	CompletedAt time.Time `json:"completedAt" yaml:"completedAt"`
	Featured    bool      `json:"featured" yaml:"featured"`
}

func (p *Project) Kind() ContentType  { return TypeProject }
func (p *Project) Identifier() string { return p.ID }

// Service is a service offering served at /services/{slug}.
type Service struct {
	Base          `yaml:",inline"`
	Slug          string   `json:"slug" yaml:"slug"`
	Description   string   `json:"description" yaml:"description"`
	Content       string   `json:"content" yaml:"-"`
	Icon          string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	FeaturedImage string   `json:"featuredImage,omitempty" yaml:"featuredImage,omitempty"`
	Gallery       []Image  `json:"gallery,omitempty" yaml:"gallery,omitempty"`
	Order         int      `json:"order" yaml:"order"`
	Featured      bool     `json:"featured" yaml:"featured"`
	Features      []string `json:"features" yaml:"features"`
}

func (s *Service) Kind() ContentType  { return TypeService }
func (s *Service) Identifier() string { return s.Slug }

// BlogPost is an article served at /blog/{slug}.
type BlogPost struct {
	Base          `yaml:",inline"`
	Slug          string   `json:"slug" yaml:"slug"`
	Excerpt       string   `json:"excerpt" yaml:"excerpt"`
	Content       string   `json:"content" yaml:"-"`
	Author        string   `json:"author" yaml:"author"`
	Tags          []string `json:"tags" yaml:"tags"`
	Category      string   `json:"category" yaml:"category"`
	FeaturedImage string   `json:"featuredImage,omitempty" yaml:"featuredImage,omitempty"`
}

func (b *BlogPost) Kind() ContentType  { return TypeBlog }
func (b *BlogPost) Identifier() string { return b.Slug }

// Testimonial is a customer quote. It has no publication status.
type Testimonial struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Company     string    `json:"company,omitempty" yaml:"company,omitempty"`
	Content     string    `json:"content" yaml:"content"`
	Rating      int       `json:"rating" yaml:"rating"`
	Avatar      string    `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	ProjectID   string    `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	Featured    bool      `json:"featured" yaml:"featured"`
	PublishedAt time.Time `json:"publishedAt" yaml:"publishedAt"`
}

func (t *Testimonial) Kind() ContentType  { return TypeTestimonial }
func (t *Testimonial) Identifier() string { return t.ID }

// Address is the business street address.
type Address struct {
	Street  string `json:"street" yaml:"street"`
	City    string `json:"city" yaml:"city"`
	State   string `json:"state" yaml:"state"`
	ZipCode string `json:"zipCode" yaml:"zipCode"`
	Country string `json:"country" yaml:"country"`
}

// BusinessHours is one day of opening hours.
type BusinessHours struct {
	Day    string `json:"day" yaml:"day"`
	Open   string `json:"open" yaml:"open"`
	Close  string `json:"close" yaml:"close"`
	Closed bool   `json:"closed,omitempty" yaml:"closed,omitempty"`
}

// ContactInfo is the public contact block.
type ContactInfo struct {
	Phone         string          `json:"phone" yaml:"phone"`
	Email         string          `json:"email" yaml:"email"`
	Address       Address         `json:"address" yaml:"address"`
	BusinessHours []BusinessHours `json:"businessHours" yaml:"businessHours"`
}

// SocialLinks holds optional social profile URLs.
type SocialLinks struct {
	Facebook  string `json:"facebook,omitempty" yaml:"facebook,omitempty"`
	Instagram string `json:"instagram,omitempty" yaml:"instagram,omitempty"`
	Twitter   string `json:"twitter,omitempty" yaml:"twitter,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty" yaml:"linkedin,omitempty"`
	YouTube   string `json:"youtube,omitempty" yaml:"youtube,omitempty"`
}

// GlobalSEO holds the site-wide search defaults.
type GlobalSEO struct {
	DefaultTitle       string   `json:"defaultTitle" yaml:"defaultTitle"`
	TitleTemplate      string   `json:"titleTemplate" yaml:"titleTemplate"`
	DefaultDescription string   `json:"defaultDescription" yaml:"defaultDescription"`
	DefaultKeywords    []string `json:"defaultKeywords" yaml:"defaultKeywords"`
	OGImage            string   `json:"ogImage" yaml:"ogImage"`
	TwitterHandle      string   `json:"twitterHandle,omitempty" yaml:"twitterHandle,omitempty"`
}

// SiteConfig is the singleton site settings document. It is always active.
type SiteConfig struct {
	SiteName    string      `json:"siteName" yaml:"siteName"`
	SiteURL     string      `json:"siteUrl" yaml:"siteUrl"`
	Description string      `json:"description" yaml:"description"`
	Contact     ContactInfo `json:"contact" yaml:"contact"`
	Social      SocialLinks `json:"social" yaml:"social"`
	SEO         GlobalSEO   `json:"seo" yaml:"seo"`
	Logo        string      `json:"logo,omitempty" yaml:"logo,omitempty"`
	Favicon     string      `json:"favicon,omitempty" yaml:"favicon,omitempty"`
}

func (c *SiteConfig) Kind() ContentType  { return TypeConfig }
func (c *SiteConfig) Identifier() string { return "general" }
