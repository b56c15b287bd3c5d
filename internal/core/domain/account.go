package domain

// FederationFlag is the user-store flag marking an account as provisioned
// and managed by the federation. It is set the first time an account is
// resolved or created by this engine and never cleared by it.
const FederationFlag = "shibboleth_account"

// ProfileFields are the mutable profile attributes reconciled from
// federation data on login.
type ProfileFields struct {
	Nicename    string            `json:"nicename,omitempty" yaml:"nicename,omitempty"`
	FirstName   string            `json:"first_name,omitempty" yaml:"first_name,omitempty"`
	LastName    string            `json:"last_name,omitempty" yaml:"last_name,omitempty"`
	DisplayName string            `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Email       string            `json:"email,omitempty" yaml:"email,omitempty"`
	Extra       map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Account is this engine's view of a user-store record. The store owns the
// record; FederationManaged surfaces the provenance flag as a typed field so
// callers never re-query it ad hoc.
type Account struct {
	ID       int64         `json:"id" yaml:"id"`
	Username string        `json:"username" yaml:"username"`
	Profile  ProfileFields `json:"profile" yaml:"profile"`
	Role     string        `json:"role,omitempty" yaml:"role,omitempty"`

	// FederationManaged is true when the account carries FederationFlag.
	FederationManaged bool `json:"federation_managed" yaml:"federation_managed"`
}

// Resolution is the result of identity resolution for one request.
type Resolution struct {
	Account *Account

	// Created is true when this request provisioned the account.
	Created bool
}
