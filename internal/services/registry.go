package services

import (
	"github.com/fyrsmithlabs/fixdesk/internal/catalog"
	"github.com/fyrsmithlabs/fixdesk/internal/escalation"
	"github.com/fyrsmithlabs/fixdesk/internal/feedback"
	"github.com/fyrsmithlabs/fixdesk/internal/matcher"
	"github.com/fyrsmithlabs/fixdesk/internal/resolver"
	"github.com/fyrsmithlabs/fixdesk/internal/session"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
)

// Registry provides access to all fixdesk services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Sessions() *session.Service
	Resolver() *resolver.Resolver
	Matcher() *matcher.Matcher
	Feedback() feedback.Service
	Escalation() *escalation.Service
	Catalog() *catalog.Catalog
	Store() store.Store
}

// Options configures the registry with service instances.
type Options struct {
	Sessions   *session.Service
	Resolver   *resolver.Resolver
	Matcher    *matcher.Matcher
	Feedback   feedback.Service
	Escalation *escalation.Service
	Catalog    *catalog.Catalog
	Store      store.Store
}

// registry is the concrete implementation of Registry.
type registry struct {
	sessions   *session.Service
	resolver   *resolver.Resolver
	matcher    *matcher.Matcher
	feedback   feedback.Service
	escalation *escalation.Service
	catalog    *catalog.Catalog
	store      store.Store
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		sessions:   opts.Sessions,
		resolver:   opts.Resolver,
		matcher:    opts.Matcher,
		feedback:   opts.Feedback,
		escalation: opts.Escalation,
		catalog:    opts.Catalog,
		store:      opts.Store,
	}
}

func (r *registry) Sessions() *session.Service      { return r.sessions }
func (r *registry) Resolver() *resolver.Resolver    { return r.resolver }
func (r *registry) Matcher() *matcher.Matcher       { return r.matcher }
func (r *registry) Feedback() feedback.Service      { return r.feedback }
func (r *registry) Escalation() *escalation.Service { return r.escalation }
func (r *registry) Catalog() *catalog.Catalog       { return r.catalog }
func (r *registry) Store() store.Store              { return r.store }
