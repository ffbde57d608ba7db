package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/domain"
	"github.com/google/uuid"
)

const nodeInfoSchema20 = "http://nodeinfo.diaspora.software/ns/schema/2.0"

// NodeInfoDocument is the subset of a NodeInfo 2.0 response we keep.
type NodeInfoDocument struct {
	Version  string `json:"version"`
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
	Protocols []string `json:"protocols"`
	Usage     struct {
		Users struct {
			Total int `json:"total"`
		} `json:"users"`
	} `json:"usage"`
}

type nodeInfoIndex struct {
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// Prober fills the federated server catalog by walking a domain's NodeInfo
// discovery document. Probes are best-effort: a failed probe records the
// domain with status unknown so it is not retried on every actor fetch.
type Prober struct {
	store  *db.DB
	client *http.Client
}

func NewProber(store *db.DB) *Prober {
	return &Prober{
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Probe fetches a domain's NodeInfo and upserts its catalog row.
func (p *Prober) Probe(domainName string) error {
	doc, err := p.fetch("https://" + domainName)
	if err != nil {
		p.recordUnknown(domainName)
		return err
	}

	now := time.Now()
	return p.store.UpsertFederatedServer(&domain.FederatedServer{
		Id:                 uuid.New(),
		Domain:             domainName,
		ApplicationType:    doc.Software.Name,
		ApplicationVersion: doc.Software.Version,
		Status:             domain.ServerFederated,
		UserCount:          doc.Usage.Users.Total,
		LastCheckedAt:      &now,
		CreatedAt:          now,
	})
}

// fetch walks the well-known index and retrieves the 2.0 schema document.
// baseURL carries the scheme so tests can point the prober at a local server.
func (p *Prober) fetch(baseURL string) (*NodeInfoDocument, error) {
	var index nodeInfoIndex
	if err := p.getJSON(baseURL+"/.well-known/nodeinfo", &index); err != nil {
		return nil, fmt.Errorf("nodeinfo discovery failed: %w", err)
	}

	var href string
	for _, link := range index.Links {
		if link.Rel == nodeInfoSchema20 {
			href = link.Href
			break
		}
	}
	if href == "" {
		return nil, fmt.Errorf("no nodeinfo 2.0 link")
	}

	var doc NodeInfoDocument
	if err := p.getJSON(href, &doc); err != nil {
		return nil, fmt.Errorf("nodeinfo fetch failed: %w", err)
	}
	if doc.Software.Name == "" {
		return nil, fmt.Errorf("nodeinfo missing software name")
	}

	return &doc, nil
}

func (p *Prober) getJSON(url string, out any) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (p *Prober) recordUnknown(domainName string) {
	existing, err := p.store.ReadFederatedServerByDomain(domainName)
	if err == nil && existing != nil {
		return
	}
	_ = p.store.UpsertFederatedServer(&domain.FederatedServer{
		Id:        uuid.New(),
		Domain:    domainName,
		Status:    domain.ServerUnknown,
		CreatedAt: time.Now(),
	})
}
