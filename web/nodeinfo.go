package web

import (
	"github.com/RebelliousSmile/suddenly/db"
	"github.com/RebelliousSmile/suddenly/util"
	"github.com/charmbracelet/log"
)

const nodeInfoSchema20 = "http://nodeinfo.diaspora.software/ns/schema/2.0"

// NodeInfoIndex is the well-known discovery document pointing at the
// versioned NodeInfo endpoints.
func NodeInfoIndex(conf *util.AppConfig) map[string]any {
	return map[string]any{
		"links": []map[string]any{
			{
				"rel":  nodeInfoSchema20,
				"href": conf.BaseURL() + "/nodeinfo/2.0",
			},
		},
	}
}

// NodeInfoDocument renders our NodeInfo 2.0 response. Counting failures
// degrade to zero rather than failing the endpoint.
func NodeInfoDocument(store *db.DB, conf *util.AppConfig) map[string]any {
	users, err := store.CountLocalUsers()
	if err != nil {
		log.Warnf("Nodeinfo: failed to count users: %v", err)
	}
	games, err := store.CountLocalGames()
	if err != nil {
		log.Warnf("Nodeinfo: failed to count games: %v", err)
	}
	characters, err := store.CountLocalCharacters()
	if err != nil {
		log.Warnf("Nodeinfo: failed to count characters: %v", err)
	}
	reports, err := store.CountPublishedReports()
	if err != nil {
		log.Warnf("Nodeinfo: failed to count reports: %v", err)
	}

	return map[string]any{
		"version": "2.0",
		"software": map[string]any{
			"name":    util.Name,
			"version": util.GetVersion(),
		},
		"protocols": []string{"activitypub"},
		"services": map[string]any{
			"inbound":  []string{},
			"outbound": []string{},
		},
		"openRegistrations": conf.Conf.OpenReg,
		"usage": map[string]any{
			"users": map[string]any{
				"total": users,
			},
			"localPosts": reports,
		},
		"metadata": map[string]any{
			"nodeName":        conf.Conf.SiteName,
			"nodeDescription": conf.Conf.SiteDescription,
			"games":           games,
			"characters":      characters,
		},
	}
}
