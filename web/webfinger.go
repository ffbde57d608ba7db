package web

import (
	"fmt"
	"strings"

	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/util"
)

// JRD is the JSON Resource Descriptor returned by WebFinger.
type JRD struct {
	Subject string    `json:"subject"`
	Aliases []string  `json:"aliases,omitempty"`
	Links   []JRDLink `json:"links"`
}

type JRDLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href"`
}

// ResolveWebfinger maps an acct: resource onto a local user's descriptor.
// Only local users on our own domain resolve; anything else is not found.
func ResolveWebfinger(store *db.DB, conf *util.AppConfig, resource string) (*JRD, error) {
	acct := strings.TrimPrefix(resource, "acct:")
	if acct == resource {
		return nil, fmt.Errorf("unsupported resource: %s", resource)
	}

	username, domainName, found := strings.Cut(acct, "@")
	if !found || domainName != conf.Conf.SslDomain {
		return nil, fmt.Errorf("resource not on this instance: %s", resource)
	}

	user, err := store.ReadLocalUserByUsername(username)
	if err != nil {
		return nil, fmt.Errorf("no such user: %s", username)
	}

	actorURL := user.APID

	return &JRD{
		Subject: fmt.Sprintf("acct:%s@%s", user.Username, conf.Conf.SslDomain),
		Aliases: []string{actorURL},
		Links: []JRDLink{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: actorURL,
			},
			{
				Rel:  "http://webfinger.net/rel/profile-page",
				Type: "text/html",
				Href: fmt.Sprintf("%s/u/%s", conf.BaseURL(), user.Username),
			},
		},
	}, nil
}
