package session

import (
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const authzModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj) && r.act == p.act
`

// RulesetPath is the object guarded by the write scope.
const RulesetPath = "/v1/publisher/ruleset"

// Authorizer decides which scopes may perform which actions.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// NewAuthorizer builds an authorizer that lets writeScope replace the ruleset.
func NewAuthorizer(writeScope string) (*Authorizer, error) {
	m, err := model.NewModelFromString(authzModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load authz model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	if _, err := enforcer.AddPolicy(scopeSubject(writeScope), RulesetPath, http.MethodPost); err != nil {
		return nil, fmt.Errorf("failed to add policy: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

func scopeSubject(scope string) string {
	return "scope:" + scope
}

// Allowed reports whether any of scopes grants action on object.
func (a *Authorizer) Allowed(scopes []string, object, action string) (bool, error) {
	for _, scope := range scopes {
		ok, err := a.enforcer.Enforce(scopeSubject(scope), object, action)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
