package extract

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Extractor name constants.
const (
	NameEmail      = "email"
	NamePhone      = "phone"
	NamePerson     = "person"
	NameSocial     = "social"
	NameTechnology = "technology"
	NameImage      = "image"
	NameMetadata   = "metadata"
)

// Extractor analyzes one document for one category of entities.
// Implementations must not keep state between calls: the same extractor
// value is used by every worker concurrently.
type Extractor interface {
	// Name returns the category name for logging and error reporting.
	Name() string

	// Extract returns the findings of this category for doc.
	Extract(doc *Document) (Findings, error)
}

// Technology is one detected technology.
type Technology struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

// SocialProfile is one profile link on a known platform.
type SocialProfile struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// Findings are the entities extracted from one page.
// Every extractor fills the part matching its category.
type Findings struct {
	Emails       []string
	Phones       []model.Phone
	People       []model.Person
	Social       []SocialProfile
	Technologies []Technology
	Images       []model.Image
	Metadata     *model.PageMeta
}

// Merge appends other into f. Metadata from other replaces f's only when
// f has none.
func (f *Findings) Merge(other Findings) {
	f.Emails = append(f.Emails, other.Emails...)
	f.Phones = append(f.Phones, other.Phones...)
	f.People = append(f.People, other.People...)
	f.Social = append(f.Social, other.Social...)
	f.Technologies = append(f.Technologies, other.Technologies...)
	f.Images = append(f.Images, other.Images...)
	if f.Metadata == nil {
		f.Metadata = other.Metadata
	}
}

// Empty reports whether nothing was found.
func (f Findings) Empty() bool {
	return len(f.Emails) == 0 && len(f.Phones) == 0 && len(f.People) == 0 &&
		len(f.Social) == 0 && len(f.Technologies) == 0 && len(f.Images) == 0 &&
		f.Metadata == nil
}

// Error records the failure of one extractor on one page.
type Error struct {
	Extractor string
	PageURL   string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extractor %s on %s: %v", e.Extractor, e.PageURL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Registry holds the extractors run against every page.
type Registry struct {
	extractors []Extractor
	logger     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used to report extractor failures.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		extractors: make([]Extractor, 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// DefaultRegistry returns a registry with every built-in category.
func DefaultRegistry(opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	r.Register(NewEmailExtractor())
	r.Register(NewPhoneExtractor())
	r.Register(NewPersonExtractor())
	r.Register(NewSocialExtractor())
	r.Register(NewTechnologyExtractor())
	r.Register(NewImageExtractor())
	r.Register(NewMetadataExtractor())
	return r
}

// Register appends an extractor. New categories need no change to the
// crawler's worker loop.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Names returns the registered extractor names in run order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name()
	}
	return names
}

// Len returns the number of registered extractors.
func (r *Registry) Len() int {
	return len(r.extractors)
}

// Run applies every extractor to doc and merges the results.
// The returned errors list the extractors that failed or panicked; their
// failure does not affect the findings of the others.
func (r *Registry) Run(doc *Document) (Findings, []error) {
	var (
		merged Findings
		errs   []error
	)
	for _, e := range r.extractors {
		f, err := r.runOne(e, doc)
		if err != nil {
			r.logger.Warn("extractor failed",
				"extractor", e.Name(),
				"url", doc.PageURL(),
				"error", err,
			)
			errs = append(errs, &Error{Extractor: e.Name(), PageURL: doc.PageURL(), Err: err})
			continue
		}
		merged.Merge(f)
	}
	return merged, errs
}

func (r *Registry) runOne(e Extractor, doc *Document) (f Findings, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Debug("extractor panic", "extractor", e.Name(), "stack", string(debug.Stack()))
			f = Findings{}
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return e.Extract(doc)
}
