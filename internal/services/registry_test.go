package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/fixdesk/internal/catalog"
	"github.com/fyrsmithlabs/fixdesk/internal/escalation"
	"github.com/fyrsmithlabs/fixdesk/internal/resolver"
)

func TestRegistryAccessors(t *testing.T) {
	reg := NewRegistry(Options{})
	assert.Nil(t, reg.Sessions())
	assert.Nil(t, reg.Resolver())
	assert.Nil(t, reg.Matcher())
	assert.Nil(t, reg.Feedback())
	assert.Nil(t, reg.Escalation())
	assert.Nil(t, reg.Catalog())
	assert.Nil(t, reg.Store())
}

func TestRegistryWithServices(t *testing.T) {
	cat := catalog.Default()
	res := resolver.New(nil, nil, nil)
	esc := escalation.NewService(nil, nil, escalation.NewLocalAssigner(nil), escalation.Config{}, nil)

	reg := NewRegistry(Options{Catalog: cat, Resolver: res, Escalation: esc})
	assert.Same(t, cat, reg.Catalog())
	assert.Same(t, res, reg.Resolver())
	assert.Same(t, esc, reg.Escalation())
}
