package content

import (
	stderrors "errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/conneroisu/gitcms/internal/errors"
)

// Parser decodes raw repository files into validated records. It performs no
// I/O; the clock is only consulted for timestamp defaults.
type Parser struct {
	now func() time.Time
}

// NewParser creates a parser using the wall clock.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// NewParserWithClock creates a parser with a fixed time source.
func NewParserWithClock(now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{now: now}
}

// Parse splits raw into front matter and body and validates it as t.
func (p *Parser) Parse(raw string, t ContentType) (Record, error) {
	return p.parse("", raw, t)
}

// ParseFile classifies repoPath and parses raw as that type. Validation
// errors carry the path.
func (p *Parser) ParseFile(repoPath, raw string) (Record, error) {
	t := Classify(repoPath)
	if t == TypeUnknown {
		return nil, fmt.Errorf("unknown content type for file: %s", repoPath)
	}
	return p.parse(repoPath, raw, t)
}

func (p *Parser) parse(repoPath, raw string, t ContentType) (Record, error) {
	var (
		doc Document
		err error
	)

	if t == TypeConfig {
		doc, err = p.configDocument(repoPath, raw)
	} else {
		doc, err = SplitFrontMatter(raw)
	}
	if err != nil {
		var ce *errors.ContentError
		if stderrors.As(err, &ce) && repoPath != "" {
			ce.WithPath(repoPath)
		}
		return nil, err
	}

	return p.ParseDocument(repoPath, doc, t)
}

// configDocument accepts settings either fenced or as a bare data file.
func (p *Parser) configDocument(repoPath, raw string) (Document, error) {
	doc, err := SplitFrontMatter(raw)
	if err != nil || doc.Format != FormatNone {
		return doc, err
	}

	format := FormatYAML
	if strings.EqualFold(path.Ext(repoPath), ".toml") {
		format = FormatTOML
	}

	data, err := DecodeData(raw, format)
	if err != nil {
		return Document{}, err
	}
	return Document{Format: format, Data: data}, nil
}

// ParseDocument validates an already split document as t, collecting every
// field violation into one *errors.ValidationError.
func (p *Parser) ParseDocument(repoPath string, doc Document, t ContentType) (Record, error) {
	errs := errors.NewFieldCollector()
	f := newFields(doc.Data, errs)

	var rec Record
	switch t {
	case TypePage:
		rec = p.page(f, doc.Body)
	case TypeProject:
		rec = p.project(f, doc.Body)
	case TypeService:
		rec = p.service(f, doc.Body)
	case TypeBlog:
		rec = p.blogPost(f, doc.Body)
	case TypeTestimonial:
		rec = p.testimonial(f, doc.Body)
	case TypeConfig:
		rec = siteConfig(f)
	default:
		return nil, fmt.Errorf("unknown content type %q", t)
	}

	if err := errs.Err(string(t), repoPath); err != nil {
		return nil, err
	}
	return rec, nil
}

// ParsePage parses raw as a page.
func (p *Parser) ParsePage(raw string) (*Page, error) {
	rec, err := p.Parse(raw, TypePage)
	if err != nil {
		return nil, err
	}
	return rec.(*Page), nil
}

// ParseProject parses raw as a project.
func (p *Parser) ParseProject(raw string) (*Project, error) {
	rec, err := p.Parse(raw, TypeProject)
	if err != nil {
		return nil, err
	}
	return rec.(*Project), nil
}

// ParseService parses raw as a service.
func (p *Parser) ParseService(raw string) (*Service, error) {
	rec, err := p.Parse(raw, TypeService)
	if err != nil {
		return nil, err
	}
	return rec.(*Service), nil
}

// ParseBlogPost parses raw as a blog post.
func (p *Parser) ParseBlogPost(raw string) (*BlogPost, error) {
	rec, err := p.Parse(raw, TypeBlog)
	if err != nil {
		return nil, err
	}
	return rec.(*BlogPost), nil
}

// ParseTestimonial parses raw as a testimonial.
func (p *Parser) ParseTestimonial(raw string) (*Testimonial, error) {
	rec, err := p.Parse(raw, TypeTestimonial)
	if err != nil {
		return nil, err
	}
	return rec.(*Testimonial), nil
}

// ParseSiteConfig parses raw as the site settings document.
func (p *Parser) ParseSiteConfig(raw string) (*SiteConfig, error) {
	rec, err := p.parse(SiteConfigPath, raw, TypeConfig)
	if err != nil {
		return nil, err
	}
	return rec.(*SiteConfig), nil
}

func (p *Parser) base(f *fields, kind string) Base {
	now := p.now()
	return Base{
		ID:          f.str("id", kind+" ID is required", 0, ""),
		Title:       f.str("title", kind+" title is required", 100, "Title should be under 100 characters"),
		Status:      f.status(),
		PublishedAt: f.date("publishedAt", now),
		UpdatedAt:   f.date("updatedAt", now),
		SEO:         f.seo(),
	}
}

func (p *Parser) page(f *fields, body string) *Page {
	page := &Page{
		Base:    p.base(f, "Page"),
		Slug:    f.slug("slug", "Page slug is required"),
		Content: body,
	}
	if strings.TrimSpace(body) == "" {
		f.fail("content", "Page content is required")
	}
	return page
}

func (p *Parser) project(f *fields, body string) *Project {
	project := &Project{
		Base:        p.base(f, "Project"),
		Description: f.str("description", "Project description is required", 500, "Description should be under 500 characters"),
		Content:     body,
		Images:      f.images("images", true),
		Category:    Category(f.optString("category")),
		CompletedAt: f.date("completedAt", time.Time{}),
		Featured:    f.boolean("featured"),
	}

	if !project.Category.Valid() {
		f.fail("category", fmt.Sprintf("Invalid enum value. Expected %s", quotedCategories()))
	}
	return project
}

func quotedCategories() string {
	quoted := make([]string, len(Categories))
	for i, c := range Categories {
		quoted[i] = "'" + string(c) + "'"
	}
	return strings.Join(quoted, " | ")
}

func (p *Parser) service(f *fields, body string) *Service {
	service := &Service{
		Base:          p.base(f, "Service"),
		Slug:          f.slug("slug", "Service slug is required"),
		Description:   f.str("description", "Service description is required", 300, "Description should be under 300 characters"),
		Content:       body,
		Icon:          f.optString("icon"),
		FeaturedImage: f.urlString("featuredImage", "Invalid url", false),
		Gallery:       f.images("gallery", false),
		Featured:      f.boolean("featured"),
		Features:      f.stringList("features"),
	}

	if strings.TrimSpace(body) == "" {
		f.fail("content", "Service content is required")
	}

	order, ok := f.integer("order")
	switch {
	case !ok:
		f.fail("order", "Required")
	case order < 0:
		f.fail("order", "Number must be greater than or equal to 0")
	}
	service.Order = order

	return service
}

func (p *Parser) blogPost(f *fields, body string) *BlogPost {
	post := &BlogPost{
		Base:          p.base(f, "Blog post"),
		Slug:          f.slug("slug", "Blog post slug is required"),
		Excerpt:       f.str("excerpt", "Excerpt is required", 300, "Excerpt should be under 300 characters"),
		Content:       body,
		Author:        f.str("author", "Author is required", 0, ""),
		Tags:          f.stringList("tags"),
		Category:      f.str("category", "Category is required", 0, ""),
		FeaturedImage: f.urlString("featuredImage", "Invalid url", false),
	}
	if strings.TrimSpace(body) == "" {
		f.fail("content", "Blog post content is required")
	}
	return post
}

func (p *Parser) testimonial(f *fields, body string) *Testimonial {
	t := &Testimonial{
		ID:          f.str("id", "Testimonial ID is required", 0, ""),
		Name:        f.str("name", "Name is required", 0, ""),
		Company:     f.optString("company"),
		Avatar:      f.urlString("avatar", "Invalid url", false),
		ProjectID:   f.optString("projectId"),
		Featured:    f.boolean("featured"),
		PublishedAt: f.date("publishedAt", p.now()),
	}

	if f.has("content") {
		t.Content = f.str("content", "Testimonial content is required", 500, "Content should be under 500 characters")
	} else {
		t.Content = strings.TrimSpace(body)
		switch {
		case t.Content == "":
			f.fail("content", "Testimonial content is required")
		case len([]rune(t.Content)) > 500:
			f.fail("content", "Content should be under 500 characters")
		}
	}

	rating, ok := f.integer("rating")
	switch {
	case !ok:
		f.fail("rating", "Required")
	case rating < 1:
		f.fail("rating", "Number must be greater than or equal to 1")
	case rating > 5:
		f.fail("rating", "Number must be less than or equal to 5")
	}
	t.Rating = rating

	return t
}

func siteConfig(f *fields) *SiteConfig {
	contact := f.object("contact", true)
	address := contact.object("address", true)
	seo := f.object("seo", true)
	social := f.object("social", false)

	cfg := &SiteConfig{
		SiteName:    f.str("siteName", "Site name is required", 0, ""),
		SiteURL:     f.urlString("siteUrl", "Site URL must be a valid URL", true),
		Description: f.str("description", "Site description is required", 0, ""),
		Contact: ContactInfo{
			Phone: contact.match("phone", phonePattern, "Invalid phone number format"),
			Email: contact.email("email", "Invalid email address"),
			Address: Address{
				Street:  address.str("street", "Street address is required", 0, ""),
				City:    address.str("city", "City is required", 0, ""),
				State:   address.str("state", "State is required", 0, ""),
				ZipCode: address.str("zipCode", "ZIP code is required", 10, "ZIP code should be under 10 characters"),
				Country: address.optString("country"),
			},
		},
		Social: SocialLinks{
			Facebook:  social.urlString("facebook", "Invalid url", false),
			Instagram: social.urlString("instagram", "Invalid url", false),
			Twitter:   social.urlString("twitter", "Invalid url", false),
			LinkedIn:  social.urlString("linkedin", "Invalid url", false),
			YouTube:   social.urlString("youtube", "Invalid url", false),
		},
		SEO: GlobalSEO{
			DefaultTitle:       seo.str("defaultTitle", "Default title is required", 0, ""),
			TitleTemplate:      seo.str("titleTemplate", "Title template is required", 0, ""),
			DefaultDescription: seo.str("defaultDescription", "Default description is required", 0, ""),
			DefaultKeywords:    seo.stringList("defaultKeywords"),
			OGImage:            seo.urlString("ogImage", "OG image must be a valid URL", true),
			TwitterHandle:      seo.optString("twitterHandle"),
		},
		Logo:    f.urlString("logo", "Invalid url", false),
		Favicon: f.urlString("favicon", "Invalid url", false),
	}

	if len([]rune(cfg.Contact.Phone)) < 10 {
		contact.fail("phone", "Phone number is required")
	}
	if n := len([]rune(cfg.Contact.Address.State)); n != 0 && n != 2 {
		address.fail("state", "State should be 2 characters")
	}
	if n := len([]rune(cfg.Contact.Address.ZipCode)); n != 0 && n < 5 {
		address.fail("zipCode", "ZIP code is required")
	}
	if cfg.Contact.Address.Country == "" {
		cfg.Contact.Address.Country = "US"
	}

	hours, present := contact.list("businessHours")
	if !present {
		contact.fail("businessHours", "Required")
	}
	for _, h := range hours {
		cfg.Contact.BusinessHours = append(cfg.Contact.BusinessHours, BusinessHours{
			Day:    h.str("day", "Day is required", 0, ""),
			Open:   h.match("open", clockPattern, "Open time must be in HH:MM format"),
			Close:  h.match("close", clockPattern, "Close time must be in HH:MM format"),
			Closed: h.boolean("closed"),
		})
	}

	return cfg
}
